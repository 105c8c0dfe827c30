package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/errors"
	"isg/internal/isgkey"
	"isg/internal/model"
	"isg/internal/slogutil"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir(), 16, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entity(t *testing.T, name, path string, start, end int) model.Entity {
	t.Helper()
	k, err := isgkey.Build("go", model.TypeFn, name, path, isgkey.LineRange{Start: start, End: end})
	require.NoError(t, err)
	return model.Entity{
		Key:        k.String(),
		Name:       name,
		EntityType: model.TypeFn,
		FilePath:   path,
		StartLine:  start,
		EndLine:    end,
		Language:   "go",
		Class:      model.ClassCode,
	}
}

func external(t *testing.T, name string) string {
	t.Helper()
	target, err := isgkey.ExternalTarget("go", model.TypeFn, name)
	require.NoError(t, err)
	return target.Encode()
}

func TestDatabaseInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(tmpDir, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(tmpDir, ".isg", "isg.db"))
	require.NoError(t, err, "database file should exist")

	version, err := db.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	require.NoError(t, db.Close())
	reopened, err := Open(tmpDir, nil)
	require.NoError(t, err)
	defer reopened.Close()
}

func TestPage_Normalize(t *testing.T) {
	tests := []struct {
		in   Page
		want Page
	}{
		{Page{}, Page{Offset: 0, Limit: DefaultPageLimit}},
		{Page{Offset: -4, Limit: 10}, Page{Offset: 0, Limit: 10}},
		{Page{Offset: 7, Limit: 5000}, Page{Offset: 7, Limit: MaxPageLimit}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestGetEntity(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	require.NoError(t, s.InsertEntitiesBatch(ctx, []model.Entity{foo}))

	got, err := s.GetEntity(ctx, foo.Key)
	require.NoError(t, err)
	assert.Equal(t, foo, *got)

	// served from cache on the second read
	got, err = s.GetEntity(ctx, foo.Key)
	require.NoError(t, err)
	assert.Equal(t, foo.Name, got.Name)

	_, err = s.GetEntity(ctx, "go:fn:missing:a_go:1-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.EntityNotFound))
}

func TestInsertEntitiesBatch_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	bad := entity(t, "foo", "a.go", 1, 3)
	bad.Key = "go:fn:foo:bar:a_go:1-3"
	err := s.InsertEntitiesBatch(ctx, []model.Entity{entity(t, "ok", "a.go", 5, 6), bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.StoreWriteError))
	assert.True(t, errors.Is(err, errors.KeyFormatError))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Entities, "batch must be all-or-nothing")
}

func TestQueryEntities(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	var batch []model.Entity
	for i := 1; i <= 25; i++ {
		batch = append(batch, entity(t, fmt.Sprintf("Handler%02d", i), "api.go", i*10, i*10+5))
	}
	testFn := entity(t, "TestHandler", "api_test.go", 1, 4)
	testFn.Class = model.ClassTest
	batch = append(batch, testFn)
	require.NoError(t, s.InsertEntitiesBatch(ctx, batch))

	page, err := s.QueryEntities(ctx, EntityFilter{FilePath: "api.go", Page: Page{Offset: 20, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Entities, 5)

	page, err = s.QueryEntities(ctx, EntityFilter{Class: model.ClassTest})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "TestHandler", page.Entities[0].Name)

	page, err = s.QueryEntities(ctx, EntityFilter{NameContains: "handler0", Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)
	assert.Equal(t, DefaultPageLimit, page.Limit)
}

func TestSearchEntities(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.InsertEntitiesBatch(ctx, []model.Entity{
		entity(t, "ParseConfig", "config/load.go", 1, 9),
		entity(t, "render", "ui/view.go", 1, 2),
	}))

	page, err := s.SearchEntities(ctx, "PARSEconf", Page{})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "ParseConfig", page.Entities[0].Name)

	// key-only match through the sanitized path
	page, err = s.SearchEntities(ctx, "ui_view", Page{})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "render", page.Entities[0].Name)

	_, err = s.SearchEntities(ctx, "  ", Page{})
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}

func TestEdges(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	bar := entity(t, "bar", "a.go", 5, 7)
	require.NoError(t, s.InsertEntitiesBatch(ctx, []model.Entity{foo, bar}))
	edges := []model.Edge{
		{FromKey: foo.Key, ToKey: bar.Key, EdgeType: model.EdgeCalls, SourceLocation: "a.go:2"},
		{FromKey: foo.Key, ToKey: external(t, "Println"), EdgeType: model.EdgeCalls, SourceLocation: "a.go:2"},
	}
	require.NoError(t, s.InsertEdgesBatch(ctx, edges))
	// duplicates are ignored
	require.NoError(t, s.InsertEdgesBatch(ctx, edges[:1]))

	fwd, err := s.GetForwardEdges(ctx, foo.Key)
	require.NoError(t, err)
	assert.Len(t, fwd, 2)

	rev, err := s.GetReverseEdges(ctx, bar.Key)
	require.NoError(t, err)
	require.Len(t, rev, 1)
	assert.Equal(t, foo.Key, rev[0].FromKey)

	page, err := s.ListEdges(ctx, Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Edges, 1)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Edges)
	assert.Equal(t, 1, counts.ExternalEdges)
	assert.Equal(t, 2, counts.ByEdgeType["Calls"])

	n, err := s.DeleteEdgesByFromKeys(ctx, []string{foo.Key})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteEntitiesByKeys(ctx, []string{foo.Key, bar.Key})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertEdges_RejectsLineZeroResolvedTarget(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	err := s.InsertEdgesBatch(ctx, []model.Edge{{FromKey: foo.Key, ToKey: "go:fn:bar:b_go:0-0", EdgeType: model.EdgeCalls}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KeyFormatError))
}

func TestReplaceFile(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	bar := entity(t, "bar", "a.go", 5, 7)
	call := model.Edge{FromKey: foo.Key, ToKey: bar.Key, EdgeType: model.EdgeCalls, SourceLocation: "a.go:2"}

	delta, err := s.ReplaceFile(ctx, "a.go", []model.Entity{foo, bar}, []model.Edge{call}, "h1")
	require.NoError(t, err)
	assert.Equal(t, FileDelta{EntitiesAfter: 2, EntitiesAdded: 2, EdgesAfter: 1, EdgesAdded: 1}, *delta)

	hash, ok, err := s.GetFileHash(ctx, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h1", hash)

	// bar moves down two lines and the call goes away
	bar2 := entity(t, "bar", "a.go", 7, 9)
	delta, err = s.ReplaceFile(ctx, "a.go", []model.Entity{foo, bar2}, nil, "h2")
	require.NoError(t, err)
	assert.Equal(t, 2, delta.EntitiesBefore)
	assert.Equal(t, 1, delta.EntitiesAdded)
	assert.Equal(t, 1, delta.EntitiesRemoved)
	assert.Equal(t, 1, delta.EdgesRemoved)

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	edges, err := s.AllEdges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)

	rec, ok, err := s.GetFileRecord(ctx, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h2", rec.ContentHash)
	assert.Equal(t, 2, rec.EntityCount)
}

func TestReplaceFile_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	bar := entity(t, "bar", "a.go", 5, 7)
	call := model.Edge{FromKey: foo.Key, ToKey: bar.Key, EdgeType: model.EdgeCalls}
	_, err := s.ReplaceFile(ctx, "a.go", []model.Entity{foo, bar}, []model.Edge{call}, "h1")
	require.NoError(t, err)
	gen := s.Generation()

	// the second edge has a malformed target, so the insert fails after the
	// deletes already ran inside the transaction
	baz := entity(t, "baz", "a.go", 9, 10)
	broken := []model.Edge{
		{FromKey: baz.Key, ToKey: foo.Key, EdgeType: model.EdgeCalls},
		{FromKey: baz.Key, ToKey: "not-a-key", EdgeType: model.EdgeCalls},
	}
	_, err = s.ReplaceFile(ctx, "a.go", []model.Entity{baz}, broken, "h2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.StoreWriteError))
	assert.Equal(t, gen, s.Generation())

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Entity{foo, bar}, all)
	edges, err := s.AllEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Edge{call}, edges)
	hash, _, err := s.GetFileHash(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "h1", hash)
}

func TestReplaceFile_RejectsForeignEdgeSource(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	other := entity(t, "other", "b.go", 1, 3)
	_, err := s.ReplaceFile(ctx, "a.go", []model.Entity{foo},
		[]model.Edge{{FromKey: other.Key, ToKey: foo.Key, EdgeType: model.EdgeCalls}}, "h")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KeyFormatError))
}

func TestRemoveFile(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	foo := entity(t, "foo", "a.go", 1, 3)
	bar := entity(t, "bar", "b.go", 1, 3)
	_, err := s.ReplaceFile(ctx, "a.go", []model.Entity{foo},
		[]model.Edge{{FromKey: foo.Key, ToKey: bar.Key, EdgeType: model.EdgeCalls}}, "ha")
	require.NoError(t, err)
	_, err = s.ReplaceFile(ctx, "b.go", []model.Entity{bar}, nil, "hb")
	require.NoError(t, err)

	// cache a read so removal has to purge it
	_, err = s.GetEntity(ctx, foo.Key)
	require.NoError(t, err)

	delta, err := s.RemoveFile(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 1, delta.EntitiesRemoved)
	assert.Equal(t, 1, delta.EdgesRemoved)

	_, err = s.GetEntity(ctx, foo.Key)
	assert.True(t, errors.Is(err, errors.EntityNotFound))
	_, ok, err := s.GetFileHash(ctx, "a.go")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := s.ListFileRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b.go", recs[0].FilePath)
}

func TestFileHashRecords(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.PutFileHash(ctx, FileRecord{FilePath: "x.py", ContentHash: "abc"}))
	require.NoError(t, s.PutFileHash(ctx, FileRecord{FilePath: "x.py", ContentHash: "def", EntityCount: 3}))

	rec, ok, err := s.GetFileRecord(ctx, "x.py")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def", rec.ContentHash)
	assert.Equal(t, 3, rec.EntityCount)
	assert.False(t, rec.IndexedAt.IsZero())

	require.NoError(t, s.DeleteFileHash(ctx, "x.py"))
	_, ok, err = s.GetFileHash(ctx, "x.py")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.PutFileHash(ctx, FileRecord{FilePath: "y.py"})
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}

func TestGenerationBumpsOnCommit(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	g0 := s.Generation()
	require.NoError(t, s.InsertEntitiesBatch(ctx, []model.Entity{entity(t, "foo", "a.go", 1, 2)}))
	assert.Equal(t, g0+1, s.Generation())

	// empty batches are not mutations
	require.NoError(t, s.InsertEntitiesBatch(ctx, nil))
	assert.Equal(t, g0+1, s.Generation())
}

func TestChunkedDelete(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	var batch []model.Entity
	var keys []string
	for i := 1; i <= maxInParams+20; i++ {
		e := entity(t, fmt.Sprintf("f%d", i), "big.go", i, i)
		batch = append(batch, e)
		keys = append(keys, e.Key)
	}
	require.NoError(t, s.InsertEntitiesBatch(ctx, batch))

	n, err := s.DeleteEntitiesByKeys(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, len(keys), n)
}

func TestSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	foo := entity(t, "foo", "a.go", 1, 3)
	_, err := s.ReplaceFile(ctx, "a.go", []model.Entity{foo},
		[]model.Edge{{FromKey: foo.Key, ToKey: external(t, "bar"), EdgeType: model.EdgeCalls}}, "h-a")
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Generation(), snap.Generation)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "h-a", snap.Files[0].ContentHash)
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, foo.Key, snap.Entities[0].Key)
	require.Len(t, snap.Edges, 1)
}

func TestFilesUnder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"pkg/a.go", "pkg/sub/b.go", "pkgx/c.go", "PKG/d.go", "main.go"} {
		_, err := s.ReplaceFile(ctx, p, nil, nil, "h-"+p)
		require.NoError(t, err)
	}

	paths := func(recs []FileRecord) []string {
		var out []string
		for _, r := range recs {
			out = append(out, r.FilePath)
		}
		return out
	}

	recs, err := s.FilesUnder(ctx, "pkg")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go", "pkg/sub/b.go"}, paths(recs))

	recs, err = s.FilesUnder(ctx, "pkg/sub/")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/sub/b.go"}, paths(recs))

	recs, err = s.FilesUnder(ctx, "main.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths(recs))

	recs, err = s.FilesUnder(ctx, "")
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}
