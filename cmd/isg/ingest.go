package main

import (
	"time"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Build or refresh the graph for a source tree",
	Long: `Walk the tree, extract every supported file and bring the graph in line
with it. Files whose content hash is unchanged are skipped; files that
disappeared since the last run are removed.

Examples:
  isg ingest
  isg ingest ./services/api
  isg ingest --format=json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	start := time.Now()
	if len(args) == 1 {
		repoFlag = args[0]
	}
	s := mustSession()
	defer s.close()
	logger := s.logger("cli")

	engine, err := s.openEngine(false)
	if err != nil {
		exitWithError(err)
	}
	defer engine.Close()

	ctx, cancel := newContext()
	defer cancel()

	summary, err := engine.Ingest(ctx)
	if err != nil {
		exitWithError(err)
	}
	printResponse(summary)

	logger.Debug("Ingest completed",
		"root", s.repoRoot,
		"files", summary.FilesSeen,
		"duration", time.Since(start).Milliseconds(),
	)
}
