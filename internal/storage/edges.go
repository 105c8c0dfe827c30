package storage

import (
	"context"
	"database/sql"
	"fmt"

	"isg/internal/isgkey"
	"isg/internal/model"
)

// EdgePage is one page of an edge listing.
type EdgePage struct {
	Edges  []model.Edge `json:"edges" yaml:"edges"`
	Total  int          `json:"total" yaml:"total"`
	Offset int          `json:"offset" yaml:"offset"`
	Limit  int          `json:"limit" yaml:"limit"`
}

const edgeColumns = "from_key, to_key, edge_type, source_location"

func validateEdge(e model.Edge) error {
	if err := isgkey.Validate(e.FromKey); err != nil {
		return err
	}
	if _, err := isgkey.ParseTarget(e.ToKey); err != nil {
		return err
	}
	switch e.EdgeType {
	case model.EdgeCalls, model.EdgeUses, model.EdgeExtends, model.EdgeImplements, model.EdgeIncludes:
		return nil
	default:
		return fmt.Errorf("unknown edge type %q", e.EdgeType)
	}
}

func insertEdges(ctx context.Context, tx *sql.Tx, edges []model.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO edges (`+edgeColumns+`)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if err := validateEdge(e); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.FromKey, e.ToKey, string(e.EdgeType), e.SourceLocation); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", e.FromKey, e.ToKey, err)
		}
	}
	return nil
}

func deleteEdgesByFromKeys(ctx context.Context, tx *sql.Tx, keys []string) (int, error) {
	total := 0
	err := chunked(keys, func(part []string, args []interface{}) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE from_key IN ("+placeholders(len(part))+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete edges: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		return nil
	})
	return total, err
}

func edgesFrom(ctx context.Context, tx *sql.Tx, keys []string) ([]model.Edge, error) {
	var out []model.Edge
	err := chunked(keys, func(part []string, args []interface{}) error {
		rows, err := tx.QueryContext(ctx, "SELECT "+edgeColumns+" FROM edges WHERE from_key IN ("+placeholders(len(part))+")", args...)
		if err != nil {
			return fmt.Errorf("failed to read edges: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// InsertEdgesBatch validates and inserts edges in one transaction.
// Duplicate (from, to, type) triples are ignored.
func (s *Store) InsertEdgesBatch(ctx context.Context, edges []model.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	return s.mutate(ctx, "insert edges", func(tx *sql.Tx) error {
		return insertEdges(ctx, tx, edges)
	})
}

// DeleteEdgesByFromKeys removes every edge originating at keys.
func (s *Store) DeleteEdgesByFromKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int
	err := s.mutate(ctx, "delete edges", func(tx *sql.Tx) error {
		var err error
		n, err = deleteEdgesByFromKeys(ctx, tx, keys)
		return err
	})
	return n, err
}

// GetForwardEdges returns the edges leaving key.
func (s *Store) GetForwardEdges(ctx context.Context, key string) ([]model.Edge, error) {
	return s.queryEdges(ctx, "SELECT "+edgeColumns+" FROM edges WHERE from_key = ? ORDER BY to_key, edge_type", key)
}

// GetReverseEdges returns the edges whose stored target is exactly key.
// External targets resolved by name are only visible in a graph snapshot.
func (s *Store) GetReverseEdges(ctx context.Context, key string) ([]model.Edge, error) {
	return s.queryEdges(ctx, "SELECT "+edgeColumns+" FROM edges WHERE to_key = ? ORDER BY from_key, edge_type", key)
}

// ListEdges returns one page of edges ordered by identity.
func (s *Store) ListEdges(ctx context.Context, page Page) (*EdgePage, error) {
	page = page.Normalize()
	out := &EdgePage{Offset: page.Offset, Limit: page.Limit}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}

	edges, err := s.queryEdges(ctx,
		"SELECT "+edgeColumns+" FROM edges ORDER BY from_key, to_key, edge_type LIMIT ? OFFSET ?",
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	out.Edges = edges
	return out, nil
}

// AllEdges returns every edge ordered by identity.
func (s *Store) AllEdges(ctx context.Context) ([]model.Edge, error) {
	return allEdges(ctx, s.db)
}

func allEdges(ctx context.Context, q querier) ([]model.Edge, error) {
	return selectEdges(ctx, q, "SELECT "+edgeColumns+" FROM edges ORDER BY from_key, to_key, edge_type")
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...interface{}) ([]model.Edge, error) {
	return selectEdges(ctx, s.db, query, args...)
}

func selectEdges(ctx context.Context, q querier, query string, args ...interface{}) ([]model.Edge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	out := []model.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEdge(sc scanner) (model.Edge, error) {
	var e model.Edge
	var edgeType string
	err := sc.Scan(&e.FromKey, &e.ToKey, &edgeType, &e.SourceLocation)
	e.EdgeType = model.EdgeType(edgeType)
	return e, err
}
