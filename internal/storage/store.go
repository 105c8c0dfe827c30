package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"isg/internal/errors"
	"isg/internal/model"
)

// Page bounds for list queries.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// DefaultEntityCacheSize is used when NewStore is given a non-positive size.
const DefaultEntityCacheSize = 4096

// sqlite caps bound parameters per statement; IN lists are split below it.
const maxInParams = 500

// Page selects a window of an ordered result.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Normalize applies the default and maximum limit and clamps the offset.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	return p
}

// Counts summarizes the stored graph.
type Counts struct {
	Entities      int            `json:"entities" yaml:"entities"`
	Edges         int            `json:"edges" yaml:"edges"`
	ExternalEdges int            `json:"externalEdges" yaml:"externalEdges"`
	Files         int            `json:"files" yaml:"files"`
	ByLanguage    map[string]int `json:"byLanguage" yaml:"byLanguage"`
	ByEntityType  map[string]int `json:"byEntityType" yaml:"byEntityType"`
	ByEdgeType    map[string]int `json:"byEdgeType" yaml:"byEdgeType"`
}

// Store is the graph store adapter. It is safe for concurrent use; SQLite
// serializes writers and WAL gives readers a consistent view.
type Store struct {
	db     *DB
	logger *slog.Logger
	cache  *lru.Cache[string, model.Entity]
	gen    atomic.Uint64
}

// NewStore wraps an open database.
func NewStore(db *DB, cacheSize int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultEntityCacheSize
	}
	cache, err := lru.New[string, model.Entity](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity cache: %w", err)
	}
	return &Store{db: db, logger: logger, cache: cache}, nil
}

// OpenStore opens the repository database and wraps it in a Store.
func OpenStore(repoRoot string, cacheSize int, logger *slog.Logger) (*Store, error) {
	db, err := Open(repoRoot, logger)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(db, cacheSize, logger)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database.
func (s *Store) DB() *DB {
	return s.db
}

// Generation increases on every committed mutation. Readers use it to
// invalidate derived snapshots.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}

// mutate runs fn in one transaction and, on commit, bumps the generation
// and drops cached reads. Any failure is reported as STORE_WRITE_ERROR.
func (s *Store) mutate(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if err := s.db.WithTx(ctx, fn); err != nil {
		s.logger.Warn("Store write failed", "op", op, "error", err.Error())
		return errors.New(errors.StoreWriteError, op+" failed", err)
	}
	s.gen.Add(1)
	s.cache.Purge()
	return nil
}

// Counts returns totals and breakdowns for the stored graph.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{
		ByLanguage:   make(map[string]int),
		ByEntityType: make(map[string]int),
		ByEdgeType:   make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM edges),
			(SELECT COUNT(*) FROM edges WHERE to_key LIKE ?),
			(SELECT COUNT(*) FROM file_hashes)
	`, "%:"+externalSuffix).Scan(&c.Entities, &c.Edges, &c.ExternalEdges, &c.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph: %w", err)
	}

	groups := []struct {
		query string
		into  map[string]int
	}{
		{"SELECT language, COUNT(*) FROM entities GROUP BY language", c.ByLanguage},
		{"SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type", c.ByEntityType},
		{"SELECT edge_type, COUNT(*) FROM edges GROUP BY edge_type", c.ByEdgeType},
	}
	for _, g := range groups {
		if err := s.groupCounts(ctx, g.query, g.into); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}

// externalSuffix is the location tail of every external target key.
const externalSuffix = "unknown:0-0"

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// chunked calls fn with consecutive slices of at most maxInParams keys.
func chunked(keys []string, fn func(part []string, args []interface{}) error) error {
	for start := 0; start < len(keys); start += maxInParams {
		end := start + maxInParams
		if end > len(keys) {
			end = len(keys)
		}
		part := keys[start:end]
		args := make([]interface{}, len(part))
		for i, k := range part {
			args[i] = k
		}
		if err := fn(part, args); err != nil {
			return err
		}
	}
	return nil
}
