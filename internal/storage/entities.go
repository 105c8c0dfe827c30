package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"isg/internal/errors"
	"isg/internal/isgkey"
	"isg/internal/model"
)

// EntityFilter narrows QueryEntities. Empty fields match everything.
type EntityFilter struct {
	Language     string            `json:"language,omitempty"`
	EntityType   string            `json:"entityType,omitempty"`
	Class        model.EntityClass `json:"entityClass,omitempty"`
	FilePath     string            `json:"filePath,omitempty"`
	NameContains string            `json:"nameContains,omitempty"`
	Page         Page              `json:"page"`
}

// EntityPage is one page of an entity listing.
type EntityPage struct {
	Entities []model.Entity `json:"entities" yaml:"entities"`
	Total    int            `json:"total" yaml:"total"`
	Offset   int            `json:"offset" yaml:"offset"`
	Limit    int            `json:"limit" yaml:"limit"`
}

const entityColumns = "key, name, entity_type, file_path, start_line, end_line, language, entity_class"

// validateEntity checks that an entity row carries a well-formed key that
// agrees with its location fields.
func validateEntity(e model.Entity) error {
	k, err := isgkey.Parse(e.Key)
	if err != nil {
		return err
	}
	if isgkey.IsExternalKey(k) {
		return errors.Newf(errors.KeyFormatError, "entity key %q uses the external sentinel", e.Key)
	}
	if e.StartLine <= 0 || e.EndLine < e.StartLine {
		return errors.Newf(errors.KeyFormatError, "entity %q has invalid line range %d-%d", e.Key, e.StartLine, e.EndLine)
	}
	if e.FilePath == "" {
		return errors.Newf(errors.KeyFormatError, "entity %q has no file path", e.Key)
	}
	return nil
}

func insertEntities(ctx context.Context, tx *sql.Tx, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if err := validateEntity(e); err != nil {
			return err
		}
		class := e.Class
		if class == "" {
			class = model.ClassCode
		}
		if _, err := stmt.ExecContext(ctx,
			e.Key, e.Name, e.EntityType, e.FilePath, e.StartLine, e.EndLine, e.Language, string(class),
		); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", e.Key, err)
		}
	}
	return nil
}

func deleteEntitiesByKeys(ctx context.Context, tx *sql.Tx, keys []string) (int, error) {
	total := 0
	err := chunked(keys, func(part []string, args []interface{}) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE key IN ("+placeholders(len(part))+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete entities: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
		return nil
	})
	return total, err
}

// InsertEntitiesBatch validates and upserts entities in one transaction.
func (s *Store) InsertEntitiesBatch(ctx context.Context, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.mutate(ctx, "insert entities", func(tx *sql.Tx) error {
		return insertEntities(ctx, tx, entities)
	})
}

// DeleteEntitiesByKeys removes entities and returns how many existed.
func (s *Store) DeleteEntitiesByKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int
	err := s.mutate(ctx, "delete entities", func(tx *sql.Tx) error {
		var err error
		n, err = deleteEntitiesByKeys(ctx, tx, keys)
		return err
	})
	return n, err
}

// GetEntity returns the entity stored under key, or ENTITY_NOT_FOUND.
func (s *Store) GetEntity(ctx context.Context, key string) (*model.Entity, error) {
	if e, ok := s.cache.Get(key); ok {
		return &e, nil
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE key = ?", key)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.EntityNotFound, "entity not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	s.cache.Add(key, e)
	return &e, nil
}

// QueryEntities lists entities matching f ordered by key.
func (s *Store) QueryEntities(ctx context.Context, f EntityFilter) (*EntityPage, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.Language != "" {
		add("language = ?", f.Language)
	}
	if f.EntityType != "" {
		add("entity_type = ?", f.EntityType)
	}
	if f.Class != "" {
		add("entity_class = ?", string(f.Class))
	}
	if f.FilePath != "" {
		add("file_path = ?", f.FilePath)
	}
	if f.NameContains != "" {
		add("instr(lower(name), ?) > 0", strings.ToLower(f.NameContains))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return s.pageEntities(ctx, where, args, f.Page)
}

// SearchEntities is a case-insensitive substring match over key and name.
func (s *Store) SearchEntities(ctx context.Context, query string, page Page) (*EntityPage, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, errors.Newf(errors.InvalidArgument, "search query must not be empty")
	}
	where := " WHERE instr(lower(key), ?) > 0 OR instr(lower(name), ?) > 0"
	return s.pageEntities(ctx, where, []interface{}{q, q}, page)
}

func (s *Store) pageEntities(ctx context.Context, where string, args []interface{}, page Page) (*EntityPage, error) {
	page = page.Normalize()
	out := &EntityPage{Entities: []model.Entity{}, Offset: page.Offset, Limit: page.Limit}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities"+where, args...).Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities"+where+" ORDER BY key LIMIT ? OFFSET ?",
		append(args, page.Limit, page.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out.Entities = append(out.Entities, e)
	}
	return out, rows.Err()
}

// AllEntities returns every entity ordered by key.
func (s *Store) AllEntities(ctx context.Context) ([]model.Entity, error) {
	return allEntities(ctx, s.db)
}

func allEntities(ctx context.Context, q querier) ([]model.Entity, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntitiesInFile returns the entities extracted from path ordered by key.
func (s *Store) EntitiesInFile(ctx context.Context, path string) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE file_path = ? ORDER BY key", path)
	if err != nil {
		return nil, fmt.Errorf("failed to list file entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// querier is satisfied by *DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func scanEntity(sc scanner) (model.Entity, error) {
	var e model.Entity
	var class string
	err := sc.Scan(&e.Key, &e.Name, &e.EntityType, &e.FilePath, &e.StartLine, &e.EndLine, &e.Language, &class)
	e.Class = model.EntityClass(class)
	return e, err
}
