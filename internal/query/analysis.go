package query

import (
	"context"
	"path/filepath"

	"isg/internal/export"
	"isg/internal/graph"
)

// BlastRadius returns the layered set of entities within opts.Hops of key.
func (e *Engine) BlastRadius(ctx context.Context, key string, opts graph.BlastOptions) (*graph.BlastResult, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.BlastRadius(ctx, key, opts)
}

// DefaultHops is the configured blast radius depth.
func (e *Engine) DefaultHops() int {
	if h := e.config.Query.DefaultHops; h > 0 {
		return h
	}
	return graph.DefaultHops
}

// Cycles reports every dependency cycle.
func (e *Engine) Cycles(ctx context.Context) (*graph.CycleReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.Cycles(ctx)
}

// Coupling ranks entities by inbound plus outbound edges.
func (e *Engine) Coupling(ctx context.Context, opts graph.CouplingOptions) (*graph.CouplingReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.Coupling(ctx, opts)
}

// Clusters partitions the graph with label propagation. A zero iteration
// cap takes the configured one.
func (e *Engine) Clusters(ctx context.Context, opts graph.ClusterOptions) (*graph.ClusterReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = e.config.Query.ClusterMaxIterations
	}
	return g.Clusters(ctx, opts)
}

// SCC reports strongly connected components with their risk level.
func (e *Engine) SCC(ctx context.Context, opts graph.SCCOptions) (*graph.SCCReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.SCC(ctx, opts)
}

// KCore reports coreness and layer per entity.
func (e *Engine) KCore(ctx context.Context, opts graph.KCoreOptions) (*graph.KCoreReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return g.KCore(ctx, opts)
}

// Centrality ranks entities by PageRank or betweenness. Seeds must name
// existing nodes.
func (e *Engine) Centrality(ctx context.Context, opts graph.CentralityOptions) (*graph.CentralityReport, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range opts.Seeds {
		if err := requireNode(g, s); err != nil {
			return nil, err
		}
	}
	return g.Centrality(ctx, opts)
}

// Outline lays out the graph by directory and file for LLM context.
func (e *Engine) Outline(ctx context.Context, opts export.OutlineOptions) (*export.Outline, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Repo == "" {
		opts.Repo = filepath.Base(e.repoRoot)
	}
	return export.BuildOutline(ctx, g, opts)
}
