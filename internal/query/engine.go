// Package query provides the engine that answers read queries over the
// entity graph and applies per-file reindexes.
package query

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"isg/internal/config"
	"isg/internal/errors"
	"isg/internal/extract"
	"isg/internal/graph"
	"isg/internal/incremental"
	"isg/internal/storage"
)

var tracer = otel.Tracer("isg.query")

// Engine composes the store, the reindexer and a cached graph snapshot.
// It is safe for concurrent use.
type Engine struct {
	repoRoot  string
	store     *storage.Store
	reindexer *incremental.Reindexer
	config    *config.Config
	logger    *slog.Logger

	snapMu     sync.RWMutex
	snapshot   *graph.Graph
	snapGen    uint64
	snapBuilt  time.Time
	snapFlight singleflight.Group
}

// NewEngine creates an engine over an open store. The extractor is built
// from cfg.
func NewEngine(repoRoot string, store *storage.Store, cfg *config.Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	extractor := extract.New(extract.Options{
		Languages:    extract.NewLanguageSet(cfg.Languages),
		MaxFileSize:  cfg.Index.MaxFileSizeBytes,
		ParseTimeout: time.Duration(cfg.Index.ParseTimeoutMs) * time.Millisecond,
		AllowPartial: cfg.Index.AllowPartial,
	}, logger.With("subsystem", "extract"))

	return &Engine{
		repoRoot:  repoRoot,
		store:     store,
		reindexer: incremental.NewReindexer(extractor, store, store, logger.With("subsystem", "incremental")),
		config:    cfg,
		logger:    logger,
	}
}

// Open opens the store under repoRoot and creates an engine over it.
func Open(repoRoot string, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store, err := storage.OpenStore(repoRoot, cfg.Cache.EntityCacheSize, logger.With("subsystem", "storage"))
	if err != nil {
		return nil, err
	}
	return NewEngine(repoRoot, store, cfg, logger), nil
}

// Close closes the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// RepoRoot returns the indexed tree's root.
func (e *Engine) RepoRoot() string {
	return e.repoRoot
}

// Store returns the underlying store.
func (e *Engine) Store() *storage.Store {
	return e.store
}

// Ingest walks the tree and brings the store in line with it.
func (e *Engine) Ingest(ctx context.Context) (*incremental.Summary, error) {
	return e.reindexer.Ingest(ctx, e.repoRoot, incremental.IngestOptions{
		Workers:        e.config.Index.Workers,
		IgnorePatterns: e.config.IgnorePatterns,
		Languages:      extract.NewLanguageSet(e.config.Languages),
		MaxFileSize:    e.config.Index.MaxFileSizeBytes,
		CoverageDepth:  e.config.Index.CoverageDepth,
	})
}

// ReindexFile applies a create or modify of a repo-relative path. It is the
// single mutation entry point shared by the watcher and manual triggers.
func (e *Engine) ReindexFile(ctx context.Context, relPath string, content []byte) (*incremental.ReindexStats, error) {
	p, err := cleanPath(relPath)
	if err != nil {
		return nil, err
	}
	return e.reindexer.ReindexFile(ctx, p, content)
}

// RemoveFile drops every row owned by a repo-relative path.
func (e *Engine) RemoveFile(ctx context.Context, relPath string) (*incremental.ReindexStats, error) {
	p, err := cleanPath(relPath)
	if err != nil {
		return nil, err
	}
	return e.reindexer.RemoveFile(ctx, p)
}

// IndexedFilesUnder lists the indexed repo-relative paths at or below dir.
func (e *Engine) IndexedFilesUnder(ctx context.Context, dir string) ([]string, error) {
	recs, err := e.store.FilesUnder(ctx, dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.FilePath)
	}
	return out, nil
}

// Snapshot returns the graph for the current store generation, building it
// when a mutation has committed since the last build. Concurrent callers
// share one build.
func (e *Engine) Snapshot(ctx context.Context) (*graph.Graph, error) {
	gen := e.store.Generation()
	e.snapMu.RLock()
	if e.snapshot != nil && e.snapGen == gen {
		g := e.snapshot
		e.snapMu.RUnlock()
		return g, nil
	}
	e.snapMu.RUnlock()

	v, err, _ := e.snapFlight.Do("snapshot", func() (interface{}, error) {
		return e.buildSnapshot(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Graph), nil
}

func (e *Engine) buildSnapshot(ctx context.Context) (*graph.Graph, error) {
	ctx, span := tracer.Start(ctx, "query.buildSnapshot")
	defer span.End()

	start := time.Now()
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	gen := snap.Generation
	g := graph.Build(ctx, snap.Entities, snap.Edges)

	e.snapMu.Lock()
	e.snapshot = g
	e.snapGen = gen
	e.snapBuilt = time.Now()
	e.snapMu.Unlock()

	span.SetAttributes(attribute.Int64("query.generation", int64(gen)))
	e.logger.Debug("Built graph snapshot",
		"generation", gen,
		"nodes", g.NumNodes(),
		"edges", g.NumEdges(),
		"resolved", g.NumResolved(),
		"duration", time.Since(start).String(),
	)
	return g, nil
}

// page applies the configured defaults to a caller's page.
func (e *Engine) page(p storage.Page) storage.Page {
	if p.Limit <= 0 {
		p.Limit = e.config.Query.DefaultPageSize
	}
	if limit := e.config.Query.MaxPageSize; limit > 0 && p.Limit > limit {
		p.Limit = limit
	}
	return p.Normalize()
}

// cleanPath normalizes a repo-relative path to the slash form used in keys.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", errors.New(errors.InvalidArgument, "empty path", nil)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if path.IsAbs(clean) || filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf(errors.InvalidArgument, "path %q must be relative to the repository root", p)
	}
	return clean, nil
}
