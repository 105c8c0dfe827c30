package query

import (
	"context"
	"fmt"
	"time"

	"isg/internal/errors"
	"isg/internal/graph"
	"isg/internal/incremental"
	"isg/internal/model"
	"isg/internal/storage"
)

// EntityList is a page of entities with its token estimate.
type EntityList struct {
	storage.EntityPage `yaml:",inline"`
	Query              string `json:"query,omitempty" yaml:"query,omitempty"`
	TokenEstimate      int    `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// EntityResult is one entity with its edge counts.
type EntityResult struct {
	Entity        model.Entity `json:"entity" yaml:"entity"`
	Outbound      int          `json:"outbound" yaml:"outbound"`
	Inbound       int          `json:"inbound" yaml:"inbound"`
	TokenEstimate int          `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// EdgeList holds the edges on one side of an entity.
type EdgeList struct {
	Key           string          `json:"key" yaml:"key"`
	Direction     graph.Direction `json:"direction" yaml:"direction"`
	Edges         []model.Edge    `json:"edges" yaml:"edges"`
	TokenEstimate int             `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// EdgePage is a page of stored edges with its token estimate.
type EdgePage struct {
	storage.EdgePage `yaml:",inline"`
	TokenEstimate    int `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// Stats summarizes the index.
type Stats struct {
	storage.Counts `yaml:",inline"`
	ResolvedEdges  int                `json:"resolvedEdges" yaml:"resolvedEdges"`
	Nodes          int                `json:"nodes" yaml:"nodes"`
	Generation     uint64             `json:"generation" yaml:"generation"`
	SnapshotAt     time.Time          `json:"snapshotAt" yaml:"snapshotAt"`
	Reindex        incremental.Totals `json:"reindex" yaml:"reindex"`
	DatabasePath   string             `json:"databasePath" yaml:"databasePath"`
	TokenEstimate  int                `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// ListEntities returns a filtered page of entities ordered by key.
func (e *Engine) ListEntities(ctx context.Context, f storage.EntityFilter) (*EntityList, error) {
	f.Page = e.page(f.Page)
	page, err := e.store.QueryEntities(ctx, f)
	if err != nil {
		return nil, err
	}
	return &EntityList{
		EntityPage:    *page,
		TokenEstimate: graph.ListTokens(len(page.Entities), f.NameContains),
	}, nil
}

// SearchEntities matches query as a case-insensitive substring of the key
// or the name.
func (e *Engine) SearchEntities(ctx context.Context, query string, p storage.Page) (*EntityList, error) {
	page, err := e.store.SearchEntities(ctx, query, e.page(p))
	if err != nil {
		return nil, err
	}
	return &EntityList{
		EntityPage:    *page,
		Query:         query,
		TokenEstimate: graph.ListTokens(len(page.Entities), query),
	}, nil
}

// GetEntity returns one entity and its resolved edge counts.
func (e *Engine) GetEntity(ctx context.Context, key string) (*EntityResult, error) {
	ent, err := e.store.GetEntity(ctx, key)
	if err != nil {
		return nil, err
	}
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &EntityResult{
		Entity:        *ent,
		Outbound:      len(g.ForwardEdges(key)),
		Inbound:       len(g.ReverseEdges(key)),
		TokenEstimate: graph.ListTokens(1, key),
	}, nil
}

// ForwardEdges returns what key depends on, with cross-file call targets
// resolved.
func (e *Engine) ForwardEdges(ctx context.Context, key string) (*EdgeList, error) {
	return e.edges(ctx, key, graph.Forward)
}

// ReverseEdges returns what depends on key, including callers whose stored
// target was resolved to key by name.
func (e *Engine) ReverseEdges(ctx context.Context, key string) (*EdgeList, error) {
	return e.edges(ctx, key, graph.Reverse)
}

func (e *Engine) edges(ctx context.Context, key string, dir graph.Direction) (*EdgeList, error) {
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	// Every entity is a node, as is every external target.
	if err := requireNode(g, key); err != nil {
		return nil, err
	}
	var edges []model.Edge
	if dir == graph.Reverse {
		edges = g.ReverseEdges(key)
	} else {
		edges = g.ForwardEdges(key)
	}
	return &EdgeList{
		Key:           key,
		Direction:     dir,
		Edges:         edges,
		TokenEstimate: graph.EdgeTokens(len(edges)),
	}, nil
}

// ListEdges pages through stored edges as written, without resolution.
func (e *Engine) ListEdges(ctx context.Context, p storage.Page) (*EdgePage, error) {
	page, err := e.store.ListEdges(ctx, e.page(p))
	if err != nil {
		return nil, err
	}
	return &EdgePage{EdgePage: *page, TokenEstimate: graph.EdgeTokens(len(page.Edges))}, nil
}

// Stats reports store counts, snapshot shape and reindex totals.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	g, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	e.snapMu.RLock()
	gen, built := e.snapGen, e.snapBuilt
	e.snapMu.RUnlock()

	s := &Stats{
		Counts:        *counts,
		ResolvedEdges: g.NumResolved(),
		Nodes:         g.NumNodes(),
		Generation:    gen,
		SnapshotAt:    built,
		Reindex:       e.reindexer.Totals(),
		DatabasePath:  e.store.DB().Path(),
	}
	s.TokenEstimate = graph.ListTokens(len(s.ByLanguage)+len(s.ByEntityType)+len(s.ByEdgeType), "")
	return s, nil
}

// requireNode fails with EntityNotFound unless key is in the snapshot.
func requireNode(g *graph.Graph, key string) error {
	if !g.HasNode(key) {
		return errors.New(errors.EntityNotFound, fmt.Sprintf("entity %s not found", key), nil)
	}
	return nil
}
