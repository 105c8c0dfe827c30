package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"isg/internal/export"
)

var (
	outlineIncludeTests bool
	outlineMinInbound   int
	outlineMaxEntities  int
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Print a compact outline of the graph for LLM context",
	Long: `Print every entity grouped by directory and file with its dependents and
dependencies, followed by the heaviest edges between directories.

Examples:
  isg outline
  isg outline --max-entities=300 --min-inbound=1
  isg outline --format=json`,
	Args: cobra.NoArgs,
	Run:  runOutline,
}

func init() {
	outlineCmd.Flags().BoolVar(&outlineIncludeTests, "include-tests", false, "Include test entities")
	outlineCmd.Flags().IntVar(&outlineMinInbound, "min-inbound", 0, "Only list entities with at least this many dependents")
	outlineCmd.Flags().IntVar(&outlineMaxEntities, "max-entities", 0, "Keep only the most depended-on entities (0 for all)")
	rootCmd.AddCommand(outlineCmd)
}

func runOutline(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	outline, err := engine.Outline(ctx, export.OutlineOptions{
		IncludeTests: outlineIncludeTests,
		MinInbound:   outlineMinInbound,
		MaxEntities:  outlineMaxEntities,
	})
	if err != nil {
		exitWithError(err)
	}
	if OutputFormat(formatFlag) == FormatHuman {
		fmt.Print(outline.Text())
		return
	}
	printResponse(outline)
}
