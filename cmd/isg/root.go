package main

import (
	"github.com/spf13/cobra"

	"isg/internal/version"
)

var (
	// repoFlag overrides repository root discovery.
	repoFlag string
	// formatFlag selects json, human or yaml output.
	formatFlag string
	// verbosity is the count of -v flags.
	verbosity int
	quietFlag bool
	// logFileFlag sends logs to .isg/logs/isg.log instead of stderr.
	logFileFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "isg",
	Short: "ISG - incremental semantic graph of a source tree",
	Long: `isg extracts functions, types and their dependencies from a source tree into
a persistent graph, keeps it current as files change, and answers structural
queries over it: blast radius, cycles, coupling hotspots, clusters and more.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Repository root (default: nearest directory with .isg or .git)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human", "Output format (json, human, yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logging")
	rootCmd.PersistentFlags().BoolVar(&logFileFlag, "log-file", false, "Write logs to .isg/logs/isg.log")
}
