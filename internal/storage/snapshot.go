package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"isg/internal/model"
)

// Snapshot is every stored relation read from one committed state. A file's
// rows are either all from before or all from after any ReplaceFile.
type Snapshot struct {
	Generation uint64
	Files      []FileRecord
	Entities   []model.Entity
	Edges      []model.Edge
}

// Snapshot reads files, entities and edges inside one read transaction.
// Generation is sampled before the transaction opens, so it can only lag
// the data, never lead it.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Generation: s.Generation()}
	err := s.db.WithReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Files, err = listFileRecords(ctx, tx); err != nil {
			return err
		}
		if snap.Entities, err = allEntities(ctx, tx); err != nil {
			return err
		}
		snap.Edges, err = allEdges(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap, nil
}

// FilesUnder returns the hash records whose path is dir or lies below it.
// An empty dir matches every record.
func (s *Store) FilesUnder(ctx context.Context, dir string) ([]FileRecord, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" || dir == "." {
		return s.ListFileRecords(ctx)
	}
	prefix := dir + "/"
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash, indexed_at, entity_count, edge_count
		FROM file_hashes
		WHERE file_path = ? OR substr(file_path, 1, ?) = ?
		ORDER BY file_path
	`, dir, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records under %s: %w", dir, err)
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
