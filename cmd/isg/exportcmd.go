package main

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"isg/internal/export"
	"isg/internal/slogutil"
)

var (
	exportLevel string
	importPrune bool
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a portable snapshot of the graph",
	Long: `Write every file record, entity and edge to a compressed snapshot that
can be restored into another checkout with 'isg import'. Use - for stdout.

Examples:
  isg export graph.isg
  isg export - --level=best > graph.isg`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a snapshot written by 'isg export'",
	Long: `Restore a snapshot into this repository's graph. Each file in the
snapshot replaces whatever the graph held for it. With --prune, files absent
from the snapshot are removed. Use - for stdin.

Examples:
  isg import graph.isg
  isg import graph.isg --prune`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	exportCmd.Flags().StringVar(&exportLevel, "level", "default", "Compression level (fastest, default, better, best)")
	importCmd.Flags().BoolVar(&importPrune, "prune", false, "Remove files that are not in the snapshot")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	ok, level := zstd.EncoderLevelFromString(exportLevel)
	if !ok {
		exitWithError(invalidArgument("unknown compression level %q", exportLevel))
	}

	out := os.Stdout
	if args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			exitWithError(fmt.Errorf("failed to create %s: %w", args[0], err))
		}
		defer f.Close()
		out = f
	}

	stats, err := export.Export(ctx, engine.Store(), out, export.Options{
		Root:   s.repoRoot,
		Level:  level,
		Logger: s.logger(slogutil.SubsystemStorage),
	})
	if err != nil {
		exitWithError(err)
	}
	if args[0] != "-" {
		if err := out.Sync(); err != nil {
			exitWithError(err)
		}
		printResponse(stats)
	}
}

func runImport(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine, err := s.openEngine(false)
	if err != nil {
		exitWithError(err)
	}
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitWithError(fmt.Errorf("failed to open %s: %w", args[0], err))
		}
		defer f.Close()
		in = f
	}

	stats, err := export.Import(ctx, engine.Store(), in, export.ImportOptions{
		Prune:  importPrune,
		Logger: s.logger(slogutil.SubsystemStorage),
	})
	if err != nil {
		exitWithError(err)
	}
	printResponse(stats)
}
