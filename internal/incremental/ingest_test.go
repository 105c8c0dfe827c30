package incremental

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/extract"
	"isg/internal/slogutil"
	"isg/internal/storage"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func newStoreReindexer(t *testing.T, root string) (*Reindexer, *storage.Store) {
	t.Helper()
	store, err := storage.OpenStore(root, 0, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewReindexer(&fakeExtractor{}, store, store, slogutil.NewDiscardLogger()), store
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":          "gen/\n",
		"README.md":           "# demo\n",
		"a.go":                "foo\ncall bar\n",
		"b.go":                "bar\n",
		"e.go":                "\x00\x01",
		"d.py":                "skipped by pattern\n",
		"gen/c.go":            "generated\n",
		"node_modules/x/y.js": "dep\n",
	})
	r, store := newStoreReindexer(t, root)
	opts := IngestOptions{Workers: 4, IgnorePatterns: []string{"*.py"}}

	sum, err := r.Ingest(ctx, root, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 5, sum.FilesSeen)
	assert.Equal(t, 2, sum.FilesProcessed)
	assert.Equal(t, 3, sum.FilesSkipped)
	assert.Equal(t, 2, sum.SkipReasons[string(extract.SkipUnsupported)])
	assert.Equal(t, 1, sum.SkipReasons[string(extract.SkipBinary)])
	assert.Equal(t, 2, sum.EntitiesCreated)
	assert.Equal(t, 1, sum.EdgesCreated)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Entities)
	assert.Equal(t, 1, counts.Edges)
	assert.Equal(t, 2, counts.Files)

	// a second run sees identical hashes
	sum, err = r.Ingest(ctx, root, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.FilesProcessed)
	assert.Equal(t, 2, sum.FilesUnchanged)

	// deleted files lose their records
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	sum, err = r.Ingest(ctx, root, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesRemoved)
	assert.Equal(t, 1, sum.FilesUnchanged)

	recs, err := store.ListFileRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a.go", recs[0].FilePath)
}

func TestIngest_LanguageFilterAndSizeLimit(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go":     "foo\n",
		"big.go":   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n",
		"lib/x.rs": "helper\n",
	})
	r, _ := newStoreReindexer(t, root)

	sum, err := r.Ingest(ctx, root, IngestOptions{
		Languages:   extract.NewLanguageSet([]string{"go"}),
		MaxFileSize: 32,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesProcessed)
	assert.Equal(t, 1, sum.SkipReasons[string(extract.SkipTooLarge)])
	assert.Equal(t, 1, sum.SkipReasons[string(extract.SkipLanguage)])
}

func TestIngest_ParseFailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "foo\n", "b.go": "bar\n"})

	hashes := NewMemoryHashStore()
	r := NewReindexer(&fakeExtractor{err: errParse}, hashes, newMemoryWriter(hashes), nil)

	sum, err := r.Ingest(ctx, root, IngestOptions{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FilesFailed)
	assert.Equal(t, 2, sum.SkipReasons[SkipParseError])
	assert.Len(t, sum.Warnings, 2)
}

func TestIngest_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "foo\n"})
	r, _ := newStoreReindexer(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Ingest(ctx, root, IngestOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngest_FolderCoverage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":            "foo\n",
		"src/util.go":        "util\n",
		"src/notes.txt":      "not code\n",
		"src/core/a.go":      "a\n",
		"src/core/blob.go":   "\x00\x01",
		"src/core/deep/b.go": "b\n",
	})
	r, _ := newStoreReindexer(t, root)

	sum, err := r.Ingest(ctx, root, IngestOptions{CoverageDepth: 2})
	require.NoError(t, err)
	require.Len(t, sum.Coverage, 3)

	assert.Equal(t, FolderCoverage{Folder: ".", Seen: 1, Eligible: 1, Parsed: 1, CoveragePct: 100}, sum.Coverage[0])
	assert.Equal(t, FolderCoverage{Folder: "src", Seen: 2, Eligible: 1, Parsed: 1, Skipped: 1, CoveragePct: 100}, sum.Coverage[1])

	core := sum.Coverage[2]
	assert.Equal(t, "src/core", core.Folder)
	assert.Equal(t, 3, core.Seen)
	assert.Equal(t, 3, core.Eligible)
	assert.Equal(t, 2, core.Parsed)
	assert.Equal(t, 1, core.Skipped)
	assert.InDelta(t, 66.67, core.CoveragePct, 0.01)

	// unchanged files still count as parsed
	sum, err = r.Ingest(ctx, root, IngestOptions{CoverageDepth: 1})
	require.NoError(t, err)
	require.Len(t, sum.Coverage, 2)
	assert.Equal(t, "src", sum.Coverage[1].Folder)
	assert.Equal(t, 3, sum.Coverage[1].Parsed)
	assert.Equal(t, 4, sum.Coverage[1].Eligible)
}

func TestIngest_FailedFilesCountAgainstCoverage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pkg/a.go": "foo\n", "pkg/b.go": "bar\n"})

	hashes := NewMemoryHashStore()
	r := NewReindexer(&fakeExtractor{err: errParse}, hashes, newMemoryWriter(hashes), nil)

	sum, err := r.Ingest(ctx, root, IngestOptions{})
	require.NoError(t, err)
	require.Len(t, sum.Coverage, 1)
	assert.Equal(t, FolderCoverage{Folder: "pkg", Seen: 2, Eligible: 2, Failed: 2}, sum.Coverage[0])
}
