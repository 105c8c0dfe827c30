// Package export writes and restores portable graph snapshots, a zstd
// stream of length-delimited protobuf-wire records, and renders compact
// text outlines of the graph.
package export

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"isg/internal/errors"
	"isg/internal/model"
	"isg/internal/storage"
)

// FormatVersion is written in every header. Readers reject newer versions.
const FormatVersion = 1

// maxFrameSize bounds a single record so a corrupt length cannot exhaust
// memory.
const maxFrameSize = 16 << 20

// Source is what Export reads.
type Source interface {
	Snapshot(ctx context.Context) (*storage.Snapshot, error)
}

// Sink is what Import writes.
type Sink interface {
	ReplaceFile(ctx context.Context, path string, entities []model.Entity, edges []model.Edge, hash string) (*storage.FileDelta, error)
	RemoveFile(ctx context.Context, path string) (*storage.FileDelta, error)
	ListFileRecords(ctx context.Context) ([]storage.FileRecord, error)
}

var (
	_ Source = (*storage.Store)(nil)
	_ Sink   = (*storage.Store)(nil)
)

// Stats counts what a snapshot carried.
type Stats struct {
	Files     int           `json:"files" yaml:"files"`
	Entities  int           `json:"entities" yaml:"entities"`
	Edges     int           `json:"edges" yaml:"edges"`
	Pruned    int           `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	CreatedAt time.Time     `json:"createdAt" yaml:"createdAt"`
	Root      string        `json:"root,omitempty" yaml:"root,omitempty"`
	Duration  time.Duration `json:"durationNs" yaml:"duration"`
}

// Options configures Export.
type Options struct {
	// Root is recorded in the header for provenance only.
	Root   string
	Level  zstd.EncoderLevel
	Logger *slog.Logger
}

// Export writes every file record with its entities and outgoing edges.
// Files are written in path order, so equal stores yield equal streams
// apart from the header timestamp.
func Export(ctx context.Context, src Source, w io.Writer, opts Options) (*Stats, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	level := opts.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}

	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	files, entities, edges := snap.Files, snap.Entities, snap.Edges

	byFile := make(map[string][]model.Entity)
	owner := make(map[string]string, len(entities))
	for _, e := range entities {
		byFile[e.FilePath] = append(byFile[e.FilePath], e)
		owner[e.Key] = e.FilePath
	}
	edgesByFile := make(map[string][]model.Edge)
	for _, e := range edges {
		path, ok := owner[e.FromKey]
		if !ok {
			logger.Warn("Skipping edge without a source entity", "from", e.FromKey, "to", e.ToKey)
			continue
		}
		edgesByFile[path] = append(edgesByFile[path], e)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FilePath < files[j].FilePath })

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}

	stats := &Stats{CreatedAt: time.Now().UTC(), Root: opts.Root}
	write := func(frame []byte) error {
		_, err := zw.Write(frame)
		return err
	}

	if err := write(encodeHeader(header{Version: FormatVersion, CreatedAt: stats.CreatedAt, Root: opts.Root})); err != nil {
		zw.Close() //nolint:errcheck
		return nil, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			zw.Close() //nolint:errcheck
			return nil, err
		}
		if err := write(encodeFile(f)); err != nil {
			zw.Close() //nolint:errcheck
			return nil, err
		}
		for _, e := range byFile[f.FilePath] {
			if err := write(encodeEntity(e)); err != nil {
				zw.Close() //nolint:errcheck
				return nil, err
			}
			stats.Entities++
		}
		for _, e := range edgesByFile[f.FilePath] {
			if err := write(encodeEdge(e)); err != nil {
				zw.Close() //nolint:errcheck
				return nil, err
			}
			stats.Edges++
		}
		stats.Files++
	}
	if err := write(encodeTrailer(trailer{
		Files:    uint64(stats.Files),
		Entities: uint64(stats.Entities),
		Edges:    uint64(stats.Edges),
	})); err != nil {
		zw.Close() //nolint:errcheck
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish zstd stream: %w", err)
	}

	stats.Duration = time.Since(start)
	logger.Info("Exported snapshot",
		"files", stats.Files,
		"entities", stats.Entities,
		"edges", stats.Edges,
		"duration", stats.Duration.String(),
	)
	return stats, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Prune removes files present in the store but absent from the
	// snapshot.
	Prune  bool
	Logger *slog.Logger
}

// Import restores a snapshot with one transaction per file. A file's rows
// replace whatever the store held for it. A truncated or corrupt stream
// stops the import with an error; files applied before that point remain.
func Import(ctx context.Context, dst Sink, r io.Reader, opts ImportOptions) (*Stats, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	stats := &Stats{}
	var (
		current  *storage.FileRecord
		entities []model.Entity
		edges    []model.Edge
		seen     = make(map[string]bool)
		sawHead  bool
		tail     *trailer
	)

	flush := func() error {
		if current == nil {
			return nil
		}
		if _, err := dst.ReplaceFile(ctx, current.FilePath, entities, edges, current.ContentHash); err != nil {
			return err
		}
		seen[current.FilePath] = true
		stats.Files++
		stats.Entities += len(entities)
		stats.Edges += len(edges)
		current, entities, edges = nil, nil, nil
		return nil
	}

	for tail == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, body, err := readFrame(br)
		if err == io.EOF {
			return nil, corrupt("stream ended before trailer", nil)
		}
		if err != nil {
			return nil, corrupt("read record", err)
		}
		rec, err := decodeRecord(kind, body)
		if err != nil {
			return nil, corrupt("decode record", err)
		}

		switch {
		case rec.header != nil:
			if sawHead {
				return nil, corrupt("duplicate header", nil)
			}
			if rec.header.Version > FormatVersion {
				return nil, errors.Newf(errors.InvalidArgument, "snapshot format %d is newer than supported %d", rec.header.Version, FormatVersion)
			}
			sawHead = true
			stats.CreatedAt = rec.header.CreatedAt
			stats.Root = rec.header.Root
		case !sawHead:
			return nil, corrupt("missing header", nil)
		case rec.file != nil:
			if err := flush(); err != nil {
				return nil, err
			}
			current = rec.file
		case rec.entity != nil, rec.edge != nil:
			if current == nil {
				return nil, corrupt("row before any file record", nil)
			}
			if rec.entity != nil {
				entities = append(entities, *rec.entity)
			} else {
				edges = append(edges, *rec.edge)
			}
		case rec.trailer != nil:
			if err := flush(); err != nil {
				return nil, err
			}
			tail = rec.trailer
		}
	}

	if uint64(stats.Files) != tail.Files || uint64(stats.Entities) != tail.Entities || uint64(stats.Edges) != tail.Edges {
		return nil, corrupt(fmt.Sprintf("trailer expects %d files, %d entities, %d edges; read %d, %d, %d",
			tail.Files, tail.Entities, tail.Edges, stats.Files, stats.Entities, stats.Edges), nil)
	}

	if opts.Prune {
		records, err := dst.ListFileRecords(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if seen[rec.FilePath] {
				continue
			}
			if _, err := dst.RemoveFile(ctx, rec.FilePath); err != nil {
				return nil, err
			}
			stats.Pruned++
		}
	}

	stats.Duration = time.Since(start)
	logger.Info("Imported snapshot",
		"files", stats.Files,
		"entities", stats.Entities,
		"edges", stats.Edges,
		"pruned", stats.Pruned,
		"duration", stats.Duration.String(),
	)
	return stats, nil
}

// readFrame reads one tag, length and body. A clean end of stream before a
// tag returns io.EOF.
func readFrame(r *bufio.Reader) (protowire.Number, []byte, error) {
	tag, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	num, typ := protowire.DecodeTag(tag)
	if typ != protowire.BytesType {
		return 0, nil, fmt.Errorf("record kind %d has wire type %d", num, typ)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, unexpectedEOF(err)
	}
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("record of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, unexpectedEOF(err)
	}
	return num, body, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func corrupt(msg string, cause error) error {
	return errors.New(errors.InvalidArgument, "corrupt snapshot: "+msg, cause)
}
