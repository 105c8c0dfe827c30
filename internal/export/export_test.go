package export

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/errors"
	"isg/internal/model"
	"isg/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.OpenStore(t.TempDir(), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entity(name, path string, line int, class model.EntityClass) model.Entity {
	sanitized := []byte(path)
	for i, c := range sanitized {
		if c == '/' || c == '.' {
			sanitized[i] = '_'
		}
	}
	return model.Entity{
		Key:        fmt.Sprintf("go:fn:%s:%s:%d-%d", name, sanitized, line, line+2),
		Name:       name,
		EntityType: model.TypeFn,
		FilePath:   path,
		StartLine:  line,
		EndLine:    line + 2,
		Language:   "go",
		Class:      class,
	}
}

func seed(t *testing.T, s *storage.Store) {
	t.Helper()
	ctx := context.Background()
	run := entity("run", "cmd/main.go", 10, model.ClassCode)
	helper := entity("helper", "cmd/main.go", 20, model.ClassCode)
	test := entity("TestRun", "cmd/main_test.go", 5, model.ClassTest)

	_, err := s.ReplaceFile(ctx, "cmd/main.go", []model.Entity{run, helper}, []model.Edge{
		{FromKey: run.Key, ToKey: helper.Key, EdgeType: model.EdgeCalls, SourceLocation: "cmd/main.go:11"},
		{FromKey: run.Key, ToKey: "go:fn:Println:unknown:0-0", EdgeType: model.EdgeCalls, SourceLocation: "cmd/main.go:12"},
	}, "hash-main")
	require.NoError(t, err)
	_, err = s.ReplaceFile(ctx, "cmd/main_test.go", []model.Entity{test}, []model.Edge{
		{FromKey: test.Key, ToKey: "go:fn:run:unknown:0-0", EdgeType: model.EdgeCalls, SourceLocation: "cmd/main_test.go:6"},
	}, "hash-test")
	require.NoError(t, err)
	_, err = s.ReplaceFile(ctx, "doc.go", nil, nil, "hash-doc")
	require.NoError(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	seed(t, src)

	var buf bytes.Buffer
	out, err := Export(ctx, src, &buf, Options{Root: "/repo"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Files)
	assert.Equal(t, 3, out.Entities)
	assert.Equal(t, 3, out.Edges)

	dst := openStore(t)
	in, err := Import(ctx, dst, bytes.NewReader(buf.Bytes()), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, out.Files, in.Files)
	assert.Equal(t, out.Entities, in.Entities)
	assert.Equal(t, out.Edges, in.Edges)
	assert.Equal(t, "/repo", in.Root)
	assert.WithinDuration(t, out.CreatedAt, in.CreatedAt, time.Microsecond)

	wantEntities, err := src.AllEntities(ctx)
	require.NoError(t, err)
	gotEntities, err := dst.AllEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantEntities, gotEntities)

	wantEdges, err := src.AllEdges(ctx)
	require.NoError(t, err)
	gotEdges, err := dst.AllEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantEdges, gotEdges)

	hash, ok, err := dst.GetFileHash(ctx, "doc.go")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hash-doc", hash)
}

func TestImportReplacesAndPrunes(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	seed(t, src)
	var buf bytes.Buffer
	_, err := Export(ctx, src, &buf, Options{})
	require.NoError(t, err)

	dst := openStore(t)
	stale := entity("old", "cmd/main.go", 40, model.ClassCode)
	extra := entity("gone", "legacy/x.go", 1, model.ClassCode)
	_, err = dst.ReplaceFile(ctx, "cmd/main.go", []model.Entity{stale}, nil, "old-hash")
	require.NoError(t, err)
	_, err = dst.ReplaceFile(ctx, "legacy/x.go", []model.Entity{extra}, nil, "x")
	require.NoError(t, err)

	in, err := Import(ctx, dst, &buf, ImportOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, in.Pruned)

	_, err = dst.GetEntity(ctx, stale.Key)
	assert.True(t, errors.Is(err, errors.EntityNotFound))
	_, err = dst.GetEntity(ctx, extra.Key)
	assert.True(t, errors.Is(err, errors.EntityNotFound))

	records, err := dst.ListFileRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestImportRejectsTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(encodeHeader(header{Version: FormatVersion, CreatedAt: time.Now()}))
	require.NoError(t, err)
	_, err = zw.Write(encodeFile(storage.FileRecord{FilePath: "a.go", ContentHash: "h"}))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dst := openStore(t)
	_, err = Import(context.Background(), dst, &buf, ImportOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidArgument))
	assert.Contains(t, err.Error(), "before trailer")
}

func TestImportRejectsCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, _ = zw.Write(encodeHeader(header{Version: FormatVersion}))
	_, _ = zw.Write(encodeFile(storage.FileRecord{FilePath: "a.go", ContentHash: "h"}))
	_, _ = zw.Write(encodeTrailer(trailer{Files: 2}))
	require.NoError(t, zw.Close())

	_, err = Import(context.Background(), openStore(t), &buf, ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailer expects 2 files")
}

func TestImportRejectsNewerFormat(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, _ = zw.Write(encodeHeader(header{Version: FormatVersion + 1}))
	require.NoError(t, zw.Close())

	_, err = Import(context.Background(), openStore(t), &buf, ImportOptions{})
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := Import(context.Background(), openStore(t), bytes.NewReader([]byte("not a snapshot")), ImportOptions{})
	assert.Error(t, err)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	frame := encodeEntity(entity("run", "a.go", 1, model.ClassCode))
	// Re-frame with an extra fixed64 field appended to the body.
	body := append([]byte(nil), frame[2:]...)
	body = append(body, 0x49, 1, 2, 3, 4, 5, 6, 7, 8) // field 9, wire type 1
	rec, err := decodeRecord(kindEntity, body)
	require.NoError(t, err)
	require.NotNil(t, rec.entity)
	assert.Equal(t, "run", rec.entity.Name)
}
