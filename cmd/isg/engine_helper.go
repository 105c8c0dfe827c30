package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"isg/internal/config"
	"isg/internal/errors"
	"isg/internal/paths"
	"isg/internal/query"
	"isg/internal/slogutil"
)

// session bundles what every command needs: the resolved root, the loaded
// config and a logger factory.
type session struct {
	repoRoot string
	config   *config.Config
	loggers  *slogutil.LoggerFactory
	logFile  *os.File
}

// newSession resolves the repository root and loads its configuration.
// An explicit --repo is used as is; otherwise the root is discovered from
// the working directory.
func newSession() (*session, error) {
	repoRoot, err := resolveRepoRoot(repoFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{repoRoot: repoRoot, config: cfg}

	var cliLevel *slog.Level
	if verbosity > 0 || quietFlag {
		lvl := slogutil.LevelFromVerbosity(verbosity, quietFlag)
		cliLevel = &lvl
	}
	var w io.Writer = os.Stderr
	if logFileFlag {
		if _, err := paths.EnsureStateDir(repoRoot); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(paths.LogPath(repoRoot), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		s.logFile = f
		w = f
	}
	s.loggers = slogutil.NewLoggerFactory(w, cfg, cliLevel)
	return s, nil
}

func resolveRepoRoot(explicit string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", errors.Newf(errors.InvalidArgument, "%s is not a directory", explicit)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return paths.FindRepoRoot(wd)
}

// logger returns the logger for a subsystem.
func (s *session) logger(subsystem string) *slog.Logger {
	return s.loggers.Logger(subsystem)
}

// openEngine opens the graph. With requireIndex set, a repository that
// was never ingested fails with IndexMissing instead of creating an empty
// database.
func (s *session) openEngine(requireIndex bool) (*query.Engine, error) {
	if requireIndex {
		if _, err := os.Stat(paths.DatabasePath(s.repoRoot)); os.IsNotExist(err) {
			return nil, errors.Newf(errors.IndexMissing, "no graph found under %s", paths.StateDir(s.repoRoot))
		}
	}
	return query.Open(s.repoRoot, s.config, s.logger(slogutil.SubsystemQuery))
}

func (s *session) close() {
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// mustSession returns a session or exits on error.
func mustSession() *session {
	s, err := newSession()
	if err != nil {
		exitWithError(err)
	}
	return s
}

// mustEngine opens an engine over an existing graph or exits on error.
func mustEngine(s *session) *query.Engine {
	engine, err := s.openEngine(true)
	if err != nil {
		exitWithError(err)
	}
	return engine
}

// newContext returns a context cancelled on SIGINT or SIGTERM.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitWithError prints err with any suggested fixes and exits.
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if fixes := errors.GetSuggestedFixes(errors.CodeOf(err)); len(fixes) > 0 {
		fmt.Fprintln(os.Stderr, "\nSuggested fixes:")
		for _, fix := range fixes {
			fmt.Fprintf(os.Stderr, "  $ %s  # %s\n", fix.Command, fix.Description)
		}
	}
	os.Exit(1)
}

// invalidArgument builds an InvalidArgument error for bad CLI input.
func invalidArgument(format string, args ...interface{}) error {
	return errors.Newf(errors.InvalidArgument, format, args...)
}
