package incremental

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"isg/internal/model"
	"isg/internal/storage"
)

// HashStore holds the per-file content hash records.
type HashStore interface {
	GetFileHash(ctx context.Context, path string) (string, bool, error)
	PutFileHash(ctx context.Context, rec storage.FileRecord) error
	DeleteFileHash(ctx context.Context, path string) error
	ListFileRecords(ctx context.Context) ([]storage.FileRecord, error)
}

// GraphWriter applies per-file transitions. ReplaceFile must persist the
// hash record in the same transaction as the rows.
type GraphWriter interface {
	ReplaceFile(ctx context.Context, path string, entities []model.Entity, edges []model.Edge, hash string) (*storage.FileDelta, error)
	RemoveFile(ctx context.Context, path string) (*storage.FileDelta, error)
}

var (
	_ HashStore   = (*storage.Store)(nil)
	_ GraphWriter = (*storage.Store)(nil)
	_ HashStore   = (*MemoryHashStore)(nil)
)

// ContentHash returns the hex BLAKE2b-256 digest of content.
func ContentHash(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// MemoryHashStore is an in-memory HashStore.
type MemoryHashStore struct {
	mu      sync.RWMutex
	records map[string]storage.FileRecord
}

// NewMemoryHashStore creates an empty store.
func NewMemoryHashStore() *MemoryHashStore {
	return &MemoryHashStore{records: make(map[string]storage.FileRecord)}
}

func (m *MemoryHashStore) GetFileHash(_ context.Context, path string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[path]
	return rec.ContentHash, ok, nil
}

func (m *MemoryHashStore) PutFileHash(_ context.Context, rec storage.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.FilePath] = rec
	return nil
}

func (m *MemoryHashStore) DeleteFileHash(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, path)
	return nil
}

func (m *MemoryHashStore) ListFileRecords(_ context.Context) ([]storage.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]storage.FileRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// Len returns the number of records.
func (m *MemoryHashStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
