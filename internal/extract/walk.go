//go:build cgo

package extract

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"isg/internal/errors"
	"isg/internal/isgkey"
	"isg/internal/model"
)

// Available reports whether grammar-backed extraction is compiled in.
func Available() bool { return true }

func (e *Extractor) getParser() *sitter.Parser {
	if p, ok := e.parsers.Get().(*sitter.Parser); ok {
		return p
	}
	return sitter.NewParser()
}

func (e *Extractor) extractTree(ctx context.Context, res *Result, source []byte) error {
	ad := adapterFor(res.Language)
	if ad == nil {
		return parseError(res.Path, fmt.Errorf("no grammar for %s", res.Language))
	}

	parser := e.getParser()
	defer e.parsers.Put(parser)
	parser.SetLanguage(ad.grammar())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return parseError(res.Path, err)
	}
	if tree == nil {
		return parseError(res.Path, ctx.Err())
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if !e.opts.AllowPartial {
			return parseError(res.Path, fmt.Errorf("syntax errors in tree"))
		}
		res.Warnings = append(res.Warnings, Warning{
			Path:    res.Path,
			Code:    errors.ParseError,
			Message: "syntax errors in tree, declarations extracted best-effort",
		})
	}

	w := &walker{
		lang:  res.Language,
		ad:    ad,
		src:   source,
		path:  res.Path,
		keys:  make(map[string]int),
		lines: int(root.EndPoint().Row) + 1,
	}
	w.walk(root)
	w.finish(res)
	return nil
}

// ref is a reference site waiting for target resolution.
type ref struct {
	from       int // index into walker.entities, -1 for the file entity
	edgeType   model.EdgeType
	name       string
	targetType string
	line       int
}

type walker struct {
	lang     Language
	ad       *adapter
	src      []byte
	path     string
	lines    int
	entities []model.Entity
	keys     map[string]int
	stack    []int
	refs     []ref
	warnings []Warning
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	pushed := false
	if rule, ok := w.ad.entities[n.Type()]; ok {
		if idx, ok := w.addEntity(n, rule); ok {
			w.stack = append(w.stack, idx)
			pushed = true
			if rule.inherits != nil {
				rule.inherits(w, n)
			}
		}
	}
	if fn, ok := w.ad.refs[n.Type()]; ok {
		fn(w, n)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}

	if pushed {
		w.stack = w.stack[:len(w.stack)-1]
	}
}

// insideType reports whether the innermost enclosing entity is a type-like
// container, which turns functions into methods.
func (w *walker) insideType() bool {
	for i := len(w.stack) - 1; i >= 0; i-- {
		switch w.entities[w.stack[i]].EntityType {
		case model.TypeFn, model.TypeMethod:
			return false
		case model.TypeClass, model.TypeStruct, model.TypeInterface, model.TypeTrait,
			model.TypeImpl, model.TypeEnum:
			return true
		}
	}
	return false
}

func (w *walker) addEntity(n *sitter.Node, rule entityRule) (int, bool) {
	nameFn := rule.name
	if nameFn == nil {
		nameFn = defaultName
	}
	name := cleanName(nameFn(n, w.src))
	if name == "" {
		return 0, false
	}

	entityType := rule.entityType
	if rule.kind != nil {
		entityType = rule.kind(n, w.src)
		if entityType == "" {
			return 0, false
		}
	}
	if entityType == model.TypeFn && w.insideType() {
		entityType = model.TypeMethod
	}

	lines := isgkey.LineRange{Start: int(n.StartPoint().Row) + 1, End: int(n.EndPoint().Row) + 1}
	key, err := isgkey.Build(string(w.lang), entityType, name, w.path, lines)
	if err != nil {
		w.warn(errors.KeyFormatError, fmt.Sprintf("dropped %s %q at line %d: %v", entityType, name, lines.Start, err))
		return 0, false
	}

	ks := key.String()
	if idx, dup := w.keys[ks]; dup {
		return idx, true
	}

	w.entities = append(w.entities, model.Entity{
		Key:        ks,
		Name:       name,
		EntityType: entityType,
		FilePath:   w.path,
		StartLine:  lines.Start,
		EndLine:    lines.End,
		Language:   string(w.lang),
		Class:      Classify(w.lang, w.path, entityType, name),
	})
	idx := len(w.entities) - 1
	w.keys[ks] = idx
	return idx, true
}

// addRef records a reference from the innermost entity. File-scoped edge
// types (imports and includes) always originate at the file entity.
func (w *walker) addRef(n *sitter.Node, edgeType model.EdgeType, name, targetType string) {
	name = cleanName(name)
	if name == "" {
		return
	}
	from := -1
	if edgeType != model.EdgeUses && edgeType != model.EdgeIncludes && len(w.stack) > 0 {
		from = w.stack[len(w.stack)-1]
	}
	w.refs = append(w.refs, ref{
		from:       from,
		edgeType:   edgeType,
		name:       name,
		targetType: targetType,
		line:       int(n.StartPoint().Row) + 1,
	})
}

func (w *walker) warn(code errors.ErrorCode, msg string) {
	w.warnings = append(w.warnings, Warning{Path: w.path, Code: code, Message: msg})
}

// fileEntity returns the index of the file anchor, creating it on first use.
func (w *walker) fileEntity() (int, bool) {
	name := path.Base(w.path)
	lines := isgkey.LineRange{Start: 1, End: w.lines}
	key, err := isgkey.Build(string(w.lang), model.TypeFile, name, w.path, lines)
	if err != nil {
		w.warn(errors.KeyFormatError, fmt.Sprintf("dropped file entity: %v", err))
		return 0, false
	}
	ks := key.String()
	if idx, ok := w.keys[ks]; ok {
		return idx, true
	}
	w.entities = append(w.entities, model.Entity{
		Key:        ks,
		Name:       name,
		EntityType: model.TypeFile,
		FilePath:   w.path,
		StartLine:  1,
		EndLine:    w.lines,
		Language:   string(w.lang),
		Class:      Classify(w.lang, w.path, model.TypeFile, ""),
	})
	idx := len(w.entities) - 1
	w.keys[ks] = idx
	return idx, true
}

// finish resolves references against this file's entities and emits edges.
func (w *walker) finish(res *Result) {
	callables := make(map[string][]string)
	types := make(map[string][]string)
	for _, e := range w.entities {
		switch {
		case model.IsCallable(e.EntityType):
			callables[isgkey.Sanitize(e.Name)] = append(callables[isgkey.Sanitize(e.Name)], e.Key)
		case e.EntityType != model.TypeFile:
			types[isgkey.Sanitize(e.Name)] = append(types[isgkey.Sanitize(e.Name)], e.Key)
		}
	}
	for _, m := range []map[string][]string{callables, types} {
		for _, ks := range m {
			sort.Strings(ks)
		}
	}

	seen := make(map[model.EdgeID]bool)
	for _, r := range w.refs {
		from := r.from
		if from < 0 {
			idx, ok := w.fileEntity()
			if !ok {
				continue
			}
			from = idx
		}

		var index map[string][]string
		switch r.edgeType {
		case model.EdgeCalls:
			index = callables
		case model.EdgeExtends, model.EdgeImplements:
			index = types
		}

		toKey, err := w.resolve(r, index)
		if err != nil {
			w.warn(errors.KeyFormatError, fmt.Sprintf("dropped %s edge to %q at line %d: %v", r.edgeType, r.name, r.line, err))
			continue
		}

		edge := model.Edge{
			FromKey:        w.entities[from].Key,
			ToKey:          toKey,
			EdgeType:       r.edgeType,
			SourceLocation: w.path + ":" + strconv.Itoa(r.line),
		}
		if seen[edge.ID()] {
			continue
		}
		seen[edge.ID()] = true
		res.Edges = append(res.Edges, edge)
	}

	res.Entities = append(res.Entities, w.entities...)
	res.Warnings = append(res.Warnings, w.warnings...)
}

func (w *walker) resolve(r ref, index map[string][]string) (string, error) {
	sanitized := isgkey.Sanitize(r.name)
	if index != nil {
		if ks := index[sanitized]; len(ks) > 0 {
			return ks[0], nil
		}
		if ks := index[isgkey.LocalName(sanitized)]; len(ks) > 0 {
			return ks[0], nil
		}
	}
	t, err := isgkey.ExternalTarget(string(w.lang), r.targetType, r.name)
	if err != nil {
		return "", err
	}
	return t.Encode(), nil
}

// cleanName collapses whitespace and strips quoting left over from string
// literal nodes.
func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), "")
	s = strings.Trim(s, "\"'`<>")
	return s
}
