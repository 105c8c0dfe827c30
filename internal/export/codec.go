package export

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"isg/internal/model"
	"isg/internal/storage"
)

// Record kinds. Each record in the stream is a length-delimited message
// whose single populated field number is its kind.
const (
	kindHeader  protowire.Number = 1
	kindFile    protowire.Number = 2
	kindEntity  protowire.Number = 3
	kindEdge    protowire.Number = 4
	kindTrailer protowire.Number = 15
)

// header is the first record of a snapshot.
type header struct {
	Version   uint64
	CreatedAt time.Time
	Root      string
}

// trailer closes a snapshot; its counts detect truncation.
type trailer struct {
	Files    uint64
	Entities uint64
	Edges    uint64
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// wrap frames body as the given record kind.
func wrap(kind protowire.Number, body []byte) []byte {
	b := protowire.AppendTag(nil, kind, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func encodeHeader(h header) []byte {
	var b []byte
	b = appendVarint(b, 1, h.Version)
	b = appendVarint(b, 2, uint64(h.CreatedAt.UnixNano()))
	b = appendString(b, 3, h.Root)
	return wrap(kindHeader, b)
}

func encodeTrailer(t trailer) []byte {
	var b []byte
	b = appendVarint(b, 1, t.Files)
	b = appendVarint(b, 2, t.Entities)
	b = appendVarint(b, 3, t.Edges)
	return wrap(kindTrailer, b)
}

func encodeFile(r storage.FileRecord) []byte {
	var b []byte
	b = appendString(b, 1, r.FilePath)
	b = appendString(b, 2, r.ContentHash)
	b = appendVarint(b, 3, uint64(r.IndexedAt.UnixNano()))
	b = appendVarint(b, 4, uint64(r.EntityCount))
	b = appendVarint(b, 5, uint64(r.EdgeCount))
	return wrap(kindFile, b)
}

func encodeEntity(e model.Entity) []byte {
	var b []byte
	b = appendString(b, 1, e.Key)
	b = appendString(b, 2, e.Name)
	b = appendString(b, 3, e.EntityType)
	b = appendString(b, 4, e.FilePath)
	b = appendVarint(b, 5, uint64(e.StartLine))
	b = appendVarint(b, 6, uint64(e.EndLine))
	b = appendString(b, 7, e.Language)
	b = appendString(b, 8, string(e.Class))
	return wrap(kindEntity, b)
}

func encodeEdge(e model.Edge) []byte {
	var b []byte
	b = appendString(b, 1, e.FromKey)
	b = appendString(b, 2, e.ToKey)
	b = appendString(b, 3, string(e.EdgeType))
	b = appendString(b, 4, e.SourceLocation)
	return wrap(kindEdge, b)
}

// record is one decoded frame; exactly one field is set.
type record struct {
	header  *header
	trailer *trailer
	file    *storage.FileRecord
	entity  *model.Entity
	edge    *model.Edge
}

// decodeRecord parses the body of one frame of the given kind.
func decodeRecord(kind protowire.Number, body []byte) (record, error) {
	var rec record
	switch kind {
	case kindHeader:
		h := &header{}
		err := walkFields(body, func(f protowire.Number, s string, v uint64) {
			switch f {
			case 1:
				h.Version = v
			case 2:
				h.CreatedAt = time.Unix(0, int64(v)).UTC()
			case 3:
				h.Root = s
			}
		})
		rec.header = h
		return rec, err
	case kindTrailer:
		t := &trailer{}
		err := walkFields(body, func(f protowire.Number, _ string, v uint64) {
			switch f {
			case 1:
				t.Files = v
			case 2:
				t.Entities = v
			case 3:
				t.Edges = v
			}
		})
		rec.trailer = t
		return rec, err
	case kindFile:
		r := &storage.FileRecord{}
		err := walkFields(body, func(f protowire.Number, s string, v uint64) {
			switch f {
			case 1:
				r.FilePath = s
			case 2:
				r.ContentHash = s
			case 3:
				r.IndexedAt = time.Unix(0, int64(v)).UTC()
			case 4:
				r.EntityCount = int(v)
			case 5:
				r.EdgeCount = int(v)
			}
		})
		rec.file = r
		return rec, err
	case kindEntity:
		e := &model.Entity{}
		err := walkFields(body, func(f protowire.Number, s string, v uint64) {
			switch f {
			case 1:
				e.Key = s
			case 2:
				e.Name = s
			case 3:
				e.EntityType = s
			case 4:
				e.FilePath = s
			case 5:
				e.StartLine = int(v)
			case 6:
				e.EndLine = int(v)
			case 7:
				e.Language = s
			case 8:
				e.Class = model.EntityClass(s)
			}
		})
		rec.entity = e
		return rec, err
	case kindEdge:
		e := &model.Edge{}
		err := walkFields(body, func(f protowire.Number, s string, _ uint64) {
			switch f {
			case 1:
				e.FromKey = s
			case 2:
				e.ToKey = s
			case 3:
				e.EdgeType = model.EdgeType(s)
			case 4:
				e.SourceLocation = s
			}
		})
		rec.edge = e
		return rec, err
	}
	return record{}, fmt.Errorf("unknown record kind %d", kind)
}

// walkFields visits every varint and bytes field of a message. Unknown
// wire types are skipped so newer writers stay readable.
func walkFields(b []byte, visit func(num protowire.Number, s string, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			visit(num, "", v)
			b = b[m:]
		case protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			visit(num, s, 0)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}
