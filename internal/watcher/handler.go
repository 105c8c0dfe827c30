package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"isg/internal/incremental"
)

// Indexer is the slice of the engine a watcher drives.
type Indexer interface {
	ReindexFile(ctx context.Context, path string, content []byte) (*incremental.ReindexStats, error)
	RemoveFile(ctx context.Context, path string) (*incremental.ReindexStats, error)
}

// ReindexHandler returns a ChangeHandler that reads the changed file and
// reindexes it, or removes it from the graph when it no longer exists. A
// rename is handled as a removal of the old path; the new path arrives as
// its own create.
func ReindexHandler(root string, idx Indexer, logger *slog.Logger) ChangeHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, ev Event) error {
		abs := filepath.Join(root, filepath.FromSlash(ev.Path))

		var (
			stats *incremental.ReindexStats
			err   error
		)
		content, readErr := os.ReadFile(abs)
		switch {
		case readErr == nil:
			stats, err = idx.ReindexFile(ctx, ev.Path, content)
		case errors.Is(readErr, fs.ErrNotExist):
			stats, err = idx.RemoveFile(ctx, ev.Path)
		default:
			return readErr
		}
		if err != nil {
			return err
		}

		logger.Debug("Applied change",
			"path", ev.Path,
			"event", ev.Type.String(),
			"outcome", string(stats.Outcome),
			"entities", stats.EntitiesAfter,
			"duration", stats.Duration.String(),
		)
		return nil
	}
}
