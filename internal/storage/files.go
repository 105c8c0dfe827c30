package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"isg/internal/errors"
	"isg/internal/model"
)

// FileRecord is the hash record of one indexed file.
type FileRecord struct {
	FilePath    string    `json:"filePath" yaml:"filePath"`
	ContentHash string    `json:"contentHash" yaml:"contentHash"`
	IndexedAt   time.Time `json:"indexedAt" yaml:"indexedAt"`
	EntityCount int       `json:"entityCount" yaml:"entityCount"`
	EdgeCount   int       `json:"edgeCount" yaml:"edgeCount"`
}

// FileDelta describes what a ReplaceFile or RemoveFile changed.
type FileDelta struct {
	EntitiesBefore  int `json:"entitiesBefore"`
	EntitiesAfter   int `json:"entitiesAfter"`
	EntitiesAdded   int `json:"entitiesAdded"`
	EntitiesRemoved int `json:"entitiesRemoved"`
	EdgesBefore     int `json:"edgesBefore"`
	EdgesAfter      int `json:"edgesAfter"`
	EdgesAdded      int `json:"edgesAdded"`
	EdgesRemoved    int `json:"edgesRemoved"`
}

// ============================================================================
// Hash records
// ============================================================================

// GetFileHash returns the stored content hash of path.
func (s *Store) GetFileHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM file_hashes WHERE file_path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get file hash: %w", err)
	}
	return hash, true, nil
}

// GetFileRecord returns the full hash record of path.
func (s *Store) GetFileRecord(ctx context.Context, path string) (*FileRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_path, content_hash, indexed_at, entity_count, edge_count
		FROM file_hashes WHERE file_path = ?
	`, path)
	rec, err := scanFileRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get file record: %w", err)
	}
	return &rec, true, nil
}

// PutFileHash upserts a hash record on its own.
func (s *Store) PutFileHash(ctx context.Context, rec FileRecord) error {
	return s.mutate(ctx, "put file hash", func(tx *sql.Tx) error {
		return putFileHash(ctx, tx, rec)
	})
}

// DeleteFileHash removes the hash record of path.
func (s *Store) DeleteFileHash(ctx context.Context, path string) error {
	return s.mutate(ctx, "delete file hash", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM file_hashes WHERE file_path = ?", path)
		return err
	})
}

// ListFileRecords returns every hash record ordered by path.
func (s *Store) ListFileRecords(ctx context.Context) ([]FileRecord, error) {
	return listFileRecords(ctx, s.db)
}

func listFileRecords(ctx context.Context, q querier) ([]FileRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT file_path, content_hash, indexed_at, entity_count, edge_count
		FROM file_hashes ORDER BY file_path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func putFileHash(ctx context.Context, tx *sql.Tx, rec FileRecord) error {
	if rec.FilePath == "" || rec.ContentHash == "" {
		return errors.Newf(errors.InvalidArgument, "file record needs a path and a hash")
	}
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO file_hashes (file_path, content_hash, indexed_at, entity_count, edge_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at,
			entity_count = excluded.entity_count,
			edge_count = excluded.edge_count
	`, rec.FilePath, rec.ContentHash, rec.IndexedAt.UTC().Format(time.RFC3339Nano), rec.EntityCount, rec.EdgeCount)
	if err != nil {
		return fmt.Errorf("failed to upsert file hash: %w", err)
	}
	return nil
}

func scanFileRecord(sc scanner) (FileRecord, error) {
	var rec FileRecord
	var indexedAt string
	if err := sc.Scan(&rec.FilePath, &rec.ContentHash, &indexedAt, &rec.EntityCount, &rec.EdgeCount); err != nil {
		return rec, err
	}
	t, err := time.Parse(time.RFC3339Nano, indexedAt)
	if err != nil {
		return rec, fmt.Errorf("invalid indexed_at format: %w", err)
	}
	rec.IndexedAt = t
	return rec, nil
}

// ============================================================================
// Per-file transitions
// ============================================================================

// ReplaceFile swaps the stored rows of one file for a new extraction in a
// single transaction: the file's entities and the edges they own are
// deleted, the new rows are inserted and the hash record is updated. Every
// edge must originate at one of the new entities. On any failure nothing
// changes.
func (s *Store) ReplaceFile(ctx context.Context, path string, entities []model.Entity, edges []model.Edge, hash string) (*FileDelta, error) {
	owned := make(map[string]bool, len(entities))
	for _, e := range entities {
		owned[e.Key] = true
	}

	delta := &FileDelta{}
	err := s.mutate(ctx, "replace file "+path, func(tx *sql.Tx) error {
		oldKeys, err := fileEntityKeys(ctx, tx, path)
		if err != nil {
			return err
		}
		oldEdges, err := edgesFrom(ctx, tx, oldKeys)
		if err != nil {
			return err
		}

		if _, err := deleteEdgesByFromKeys(ctx, tx, oldKeys); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file entities: %w", err)
		}

		for _, e := range entities {
			if e.FilePath != path {
				return errors.Newf(errors.InvalidArgument, "entity %s belongs to %s, not %s", e.Key, e.FilePath, path)
			}
		}
		if err := insertEntities(ctx, tx, entities); err != nil {
			return err
		}
		for _, e := range edges {
			if !owned[e.FromKey] {
				return errors.Newf(errors.KeyFormatError, "edge source %s is not an entity of %s", e.FromKey, path)
			}
		}
		if err := insertEdges(ctx, tx, edges); err != nil {
			return err
		}

		if err := putFileHash(ctx, tx, FileRecord{
			FilePath:    path,
			ContentHash: hash,
			EntityCount: len(entities),
			EdgeCount:   len(edges),
		}); err != nil {
			return err
		}

		*delta = diffFile(oldKeys, oldEdges, entities, edges)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Replaced file",
		"path", path,
		"entities_added", delta.EntitiesAdded,
		"entities_removed", delta.EntitiesRemoved,
		"edges_added", delta.EdgesAdded,
		"edges_removed", delta.EdgesRemoved,
	)
	return delta, nil
}

// RemoveFile deletes a file's entities, the edges they own and its hash
// record in one transaction.
func (s *Store) RemoveFile(ctx context.Context, path string) (*FileDelta, error) {
	delta := &FileDelta{}
	err := s.mutate(ctx, "remove file "+path, func(tx *sql.Tx) error {
		oldKeys, err := fileEntityKeys(ctx, tx, path)
		if err != nil {
			return err
		}
		removedEdges, err := deleteEdgesByFromKeys(ctx, tx, oldKeys)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM file_hashes WHERE file_path = ?", path); err != nil {
			return fmt.Errorf("failed to delete file hash: %w", err)
		}

		delta.EntitiesBefore = len(oldKeys)
		delta.EntitiesRemoved = len(oldKeys)
		delta.EdgesBefore = removedEdges
		delta.EdgesRemoved = removedEdges
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

func fileEntityKeys(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT key FROM entities WHERE file_path = ?", path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file entities: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func diffFile(oldKeys []string, oldEdges []model.Edge, entities []model.Entity, edges []model.Edge) FileDelta {
	d := FileDelta{
		EntitiesBefore: len(oldKeys),
		EntitiesAfter:  len(entities),
		EdgesBefore:    len(oldEdges),
	}

	before := make(map[string]bool, len(oldKeys))
	for _, k := range oldKeys {
		before[k] = true
	}
	after := make(map[string]bool, len(entities))
	for _, e := range entities {
		after[e.Key] = true
		if !before[e.Key] {
			d.EntitiesAdded++
		}
	}
	for k := range before {
		if !after[k] {
			d.EntitiesRemoved++
		}
	}

	oldIDs := make(map[model.EdgeID]bool, len(oldEdges))
	for _, e := range oldEdges {
		oldIDs[e.ID()] = true
	}
	newIDs := make(map[model.EdgeID]bool, len(edges))
	for _, e := range edges {
		newIDs[e.ID()] = true
	}
	d.EdgesAfter = len(newIDs)
	for id := range newIDs {
		if !oldIDs[id] {
			d.EdgesAdded++
		}
	}
	for id := range oldIDs {
		if !newIDs[id] {
			d.EdgesRemoved++
		}
	}
	return d
}
