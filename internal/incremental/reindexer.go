package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"isg/internal/extract"
	"isg/internal/storage"
)

// FileExtractor turns one file into entities and edges.
type FileExtractor interface {
	ExtractFile(ctx context.Context, relPath string, content []byte) (*extract.Result, error)
}

// Reindexer drives per-file transitions. Transitions of the same path are
// serialized; different paths proceed in parallel.
type Reindexer struct {
	extractor FileExtractor
	hashes    HashStore
	writer    GraphWriter
	locks     *keyedMutex
	logger    *slog.Logger

	indexed   atomic.Int64
	unchanged atomic.Int64
	removed   atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewReindexer wires a Reindexer. With the SQLite store, hashes and writer
// are the same *storage.Store.
func NewReindexer(extractor FileExtractor, hashes HashStore, writer GraphWriter, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reindexer{
		extractor: extractor,
		hashes:    hashes,
		writer:    writer,
		locks:     newKeyedMutex(),
		logger:    logger,
	}
}

// ReindexFile handles a create or modify of path with the given content.
// An unchanged hash returns OutcomeUnchanged without touching the store. On
// an extraction or store failure the prior state is kept and the error is
// returned so a later event can retry.
func (r *Reindexer) ReindexFile(ctx context.Context, path string, content []byte) (*ReindexStats, error) {
	ctx, span := startTransitionSpan(ctx, "ReindexFile", path)
	unlock := r.locks.Lock(path)
	defer unlock()

	start := time.Now()
	stats := &ReindexStats{Path: path, PreviousState: StateUnindexed}
	err := r.reindex(ctx, path, content, stats)
	stats.Duration = time.Since(start)
	r.count(stats.Outcome)
	finishTransition(span, "reindex", stats, err)
	return stats, err
}

func (r *Reindexer) reindex(ctx context.Context, path string, content []byte, stats *ReindexStats) error {
	hash := ContentHash(content)
	stats.ContentHash = hash

	prev, known, err := r.hashes.GetFileHash(ctx, path)
	if err != nil {
		stats.Outcome = OutcomeFailed
		return fmt.Errorf("failed to read hash record for %s: %w", path, err)
	}
	if known {
		stats.PreviousState = StateIndexed
		if prev == hash {
			stats.Outcome = OutcomeUnchanged
			r.logger.Debug("File unchanged", "path", path)
			return nil
		}
		stats.PreviousState = StateStale
	}
	stats.HashChanged = true

	res, err := r.extractor.ExtractFile(ctx, path, content)
	if err != nil {
		stats.Outcome = OutcomeFailed
		return err
	}
	stats.Warnings = res.Warnings

	if res.Skipped != extract.SkipNone {
		stats.SkipReason = res.Skipped
		stats.Outcome = OutcomeSkipped
		if known {
			// The file stopped being indexable; drop what it used to own.
			delta, err := r.writer.RemoveFile(ctx, path)
			if err != nil {
				stats.Outcome = OutcomeFailed
				return err
			}
			applyDelta(stats, delta)
		}
		return nil
	}

	delta, err := r.writer.ReplaceFile(ctx, path, res.Entities, res.Edges, hash)
	if err != nil {
		stats.Outcome = OutcomeFailed
		r.logger.Warn("Reindex failed, keeping previous state", "path", path, "error", err.Error())
		return err
	}
	applyDelta(stats, delta)
	stats.Outcome = OutcomeIndexed

	r.logger.Debug("Reindexed file",
		"path", path,
		"entities_added", stats.EntitiesAdded,
		"entities_removed", stats.EntitiesRemoved,
		"edges_added", stats.EdgesAdded,
		"edges_removed", stats.EdgesRemoved,
	)
	return nil
}

// RemoveFile handles a delete of path. Removing an unknown path is a no-op
// reported as OutcomeUnchanged.
func (r *Reindexer) RemoveFile(ctx context.Context, path string) (*ReindexStats, error) {
	ctx, span := startTransitionSpan(ctx, "RemoveFile", path)
	unlock := r.locks.Lock(path)
	defer unlock()

	start := time.Now()
	stats := &ReindexStats{Path: path, PreviousState: StateUnindexed}
	err := r.remove(ctx, path, stats)
	stats.Duration = time.Since(start)
	r.count(stats.Outcome)
	finishTransition(span, "remove", stats, err)
	return stats, err
}

func (r *Reindexer) remove(ctx context.Context, path string, stats *ReindexStats) error {
	_, known, err := r.hashes.GetFileHash(ctx, path)
	if err != nil {
		stats.Outcome = OutcomeFailed
		return fmt.Errorf("failed to read hash record for %s: %w", path, err)
	}
	if !known {
		stats.Outcome = OutcomeUnchanged
		return nil
	}
	stats.PreviousState = StateIndexed

	delta, err := r.writer.RemoveFile(ctx, path)
	if err != nil {
		stats.Outcome = OutcomeFailed
		return err
	}
	applyDelta(stats, delta)
	stats.Outcome = OutcomeRemoved
	r.logger.Debug("Removed file", "path", path, "entities_removed", stats.EntitiesRemoved)
	return nil
}

// Totals returns cumulative transition counters.
func (r *Reindexer) Totals() Totals {
	return Totals{
		Indexed:   r.indexed.Load(),
		Unchanged: r.unchanged.Load(),
		Removed:   r.removed.Load(),
		Skipped:   r.skipped.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Reindexer) count(o Outcome) {
	switch o {
	case OutcomeIndexed:
		r.indexed.Add(1)
	case OutcomeUnchanged:
		r.unchanged.Add(1)
	case OutcomeRemoved:
		r.removed.Add(1)
	case OutcomeSkipped:
		r.skipped.Add(1)
	case OutcomeFailed:
		r.failed.Add(1)
	}
}

func applyDelta(stats *ReindexStats, d *storage.FileDelta) {
	if d == nil {
		return
	}
	stats.EntitiesBefore = d.EntitiesBefore
	stats.EntitiesAfter = d.EntitiesAfter
	stats.EntitiesAdded = d.EntitiesAdded
	stats.EntitiesRemoved = d.EntitiesRemoved
	stats.EdgesAdded = d.EdgesAdded
	stats.EdgesRemoved = d.EdgesRemoved
}
