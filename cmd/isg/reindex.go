package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"isg/internal/errors"
	"isg/internal/paths"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <file>",
	Short: "Reindex a single file",
	Long: `Apply a change to one file the same way the watcher does: the file is
read and re-extracted, or removed from the graph if it no longer exists.

Examples:
  isg reindex internal/api/handler.go
  isg reindex ./old_file.py   # removed from disk, dropped from the graph`,
	Args: cobra.ExactArgs(1),
	Run:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()

	rel, err := repoRelative(s.repoRoot, args[0])
	if err != nil {
		exitWithError(err)
	}

	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	content, err := os.ReadFile(paths.JoinRepoPath(s.repoRoot, rel))
	var stats interface{}
	switch {
	case err == nil:
		stats, err = engine.ReindexFile(ctx, rel, content)
	case os.IsNotExist(err):
		stats, err = engine.RemoveFile(ctx, rel)
	}
	if err != nil {
		exitWithError(err)
	}
	printResponse(stats)
}

// repoRelative turns a path given on the command line (relative to the
// working directory, or absolute) into a slash-separated path relative to
// the repository root.
func repoRelative(repoRoot, arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	if !paths.IsWithinRepo(abs, repoRoot) {
		return "", errors.Newf(errors.InvalidArgument, "%s is outside the repository", arg)
	}
	return paths.CanonicalizePath(abs, repoRoot)
}
