package export

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"isg/internal/graph"
	"isg/internal/model"
)

// Outline is a compact view of the graph for LLM context windows:
// entities grouped by directory and file, plus the heaviest edges between
// directories.
type Outline struct {
	Metadata OutlineMetadata `json:"metadata" yaml:"metadata"`
	Modules  []OutlineModule `json:"modules" yaml:"modules"`
	Bridges  []Bridge        `json:"bridges,omitempty" yaml:"bridges,omitempty"`
}

// OutlineMetadata describes what an outline covers.
type OutlineMetadata struct {
	Repo        string `json:"repo" yaml:"repo"`
	Generated   string `json:"generated" yaml:"generated"` // ISO 8601 timestamp
	EntityCount int    `json:"entityCount" yaml:"entityCount"`
	FileCount   int    `json:"fileCount" yaml:"fileCount"`
	ModuleCount int    `json:"moduleCount" yaml:"moduleCount"`
	Truncated   bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// OutlineModule is one directory.
type OutlineModule struct {
	Path  string        `json:"path" yaml:"path"`
	Files []OutlineFile `json:"files" yaml:"files"`
}

// OutlineFile is one source file.
type OutlineFile struct {
	Name     string          `json:"name" yaml:"name"`
	Entities []OutlineEntity `json:"entities" yaml:"entities"`
}

// OutlineEntity is one entity line.
type OutlineEntity struct {
	Type       string `json:"type" yaml:"type"`
	Name       string `json:"name" yaml:"name"`
	Line       int    `json:"line" yaml:"line"`
	Inbound    int    `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	Outbound   int    `json:"outbound,omitempty" yaml:"outbound,omitempty"`
	Importance int    `json:"importance,omitempty" yaml:"importance,omitempty"` // 1-3 stars
	Test       bool   `json:"test,omitempty" yaml:"test,omitempty"`
}

// Bridge counts the resolved edges from one directory into another.
type Bridge struct {
	FromModule string `json:"fromModule" yaml:"fromModule"`
	ToModule   string `json:"toModule" yaml:"toModule"`
	EdgeCount  int    `json:"edgeCount" yaml:"edgeCount"`
	TopCaller  string `json:"topCaller,omitempty" yaml:"topCaller,omitempty"`
	TopCallee  string `json:"topCallee,omitempty" yaml:"topCallee,omitempty"`
}

// OutlineOptions configures BuildOutline.
type OutlineOptions struct {
	Repo         string
	IncludeTests bool
	// MinInbound drops entities with fewer dependents.
	MinInbound int
	// MaxEntities caps the listing; the most depended-on entities are kept.
	MaxEntities int
	// MaxBridges caps the bridge list (default 20).
	MaxBridges int
}

// ImportanceLevel rates how central an entity is.
type ImportanceLevel int

const (
	ImportanceLow    ImportanceLevel = 1
	ImportanceMedium ImportanceLevel = 2
	ImportanceHigh   ImportanceLevel = 3
)

// CalculateImportance rates an entity from its dependents and dependencies.
// Dependents weigh more than dependencies.
func CalculateImportance(inbound, outbound int) ImportanceLevel {
	score := 0

	switch {
	case inbound >= 20:
		score += 3
	case inbound >= 5:
		score += 2
	case inbound >= 1:
		score++
	}

	if outbound >= 10 {
		score++
	}

	if score >= 3 {
		return ImportanceHigh
	} else if score >= 2 {
		return ImportanceMedium
	}
	return ImportanceLow
}

// BuildOutline lays out every entity of g by directory and file, in path
// and line order.
func BuildOutline(ctx context.Context, g *graph.Graph, opts OutlineOptions) (*Outline, error) {
	if opts.MaxBridges <= 0 {
		opts.MaxBridges = 20
	}

	type row struct {
		entity   model.Entity
		inbound  int
		outbound int
	}
	var rows []row
	for _, key := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, ok := g.Entity(key)
		if !ok || e.EntityType == model.TypeFile {
			continue
		}
		if e.Class == model.ClassTest && !opts.IncludeTests {
			continue
		}
		r := row{entity: e, inbound: len(g.ReverseEdges(key)), outbound: len(g.ForwardEdges(key))}
		if r.inbound < opts.MinInbound {
			continue
		}
		rows = append(rows, r)
	}

	out := &Outline{
		Metadata: OutlineMetadata{
			Repo:      opts.Repo,
			Generated: time.Now().UTC().Format(time.RFC3339),
		},
		Modules: []OutlineModule{},
	}

	if opts.MaxEntities > 0 && len(rows) > opts.MaxEntities {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].inbound > rows[j].inbound })
		rows = rows[:opts.MaxEntities]
		out.Metadata.Truncated = true
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].entity, rows[j].entity
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.Key < b.Key
	})

	var mod *OutlineModule
	var file *OutlineFile
	for _, r := range rows {
		dir, name := path.Split(r.entity.FilePath)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" {
			dir = "."
		}
		if mod == nil || mod.Path != dir {
			out.Modules = append(out.Modules, OutlineModule{Path: dir})
			mod = &out.Modules[len(out.Modules)-1]
			file = nil
		}
		if file == nil || file.Name != name {
			mod.Files = append(mod.Files, OutlineFile{Name: name})
			file = &mod.Files[len(mod.Files)-1]
			out.Metadata.FileCount++
		}
		file.Entities = append(file.Entities, OutlineEntity{
			Type:       r.entity.EntityType,
			Name:       r.entity.Name,
			Line:       r.entity.StartLine,
			Inbound:    r.inbound,
			Outbound:   r.outbound,
			Importance: int(CalculateImportance(r.inbound, r.outbound)),
			Test:       r.entity.Class == model.ClassTest,
		})
		out.Metadata.EntityCount++
	}
	out.Metadata.ModuleCount = len(out.Modules)
	out.Bridges = bridges(g, opts.MaxBridges)
	return out, nil
}

// bridges aggregates resolved edges whose endpoints live in different
// directories.
func bridges(g *graph.Graph, limit int) []Bridge {
	type pair struct{ from, to string }
	counts := make(map[pair]int)
	callers := make(map[pair]map[string]int)
	callees := make(map[pair]map[string]int)

	for _, key := range g.Nodes() {
		from, ok := g.Entity(key)
		if !ok {
			continue
		}
		for _, e := range g.ForwardEdges(key) {
			to, ok := g.Entity(e.ToKey)
			if !ok {
				continue
			}
			p := pair{dirOf(from.FilePath), dirOf(to.FilePath)}
			if p.from == p.to {
				continue
			}
			counts[p]++
			if callers[p] == nil {
				callers[p] = make(map[string]int)
				callees[p] = make(map[string]int)
			}
			callers[p][from.Name]++
			callees[p][to.Name]++
		}
	}

	out := make([]Bridge, 0, len(counts))
	for p, n := range counts {
		out = append(out, Bridge{
			FromModule: p.from,
			ToModule:   p.to,
			EdgeCount:  n,
			TopCaller:  top(callers[p]),
			TopCallee:  top(callees[p]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EdgeCount != out[j].EdgeCount {
			return out[i].EdgeCount > out[j].EdgeCount
		}
		if out[i].FromModule != out[j].FromModule {
			return out[i].FromModule < out[j].FromModule
		}
		return out[i].ToModule < out[j].ToModule
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "" {
		return "."
	}
	return d
}

// top returns the most frequent name, ties broken by name.
func top(m map[string]int) string {
	best, bestN := "", 0
	for name, n := range m {
		if n > bestN || (n == bestN && name < best) {
			best, bestN = name, n
		}
	}
	return best
}

// Text renders the outline in the compact line format.
func (o *Outline) Text() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Codebase: %s\n", o.Metadata.Repo))
	sb.WriteString(fmt.Sprintf("# Generated: %s\n", o.Metadata.Generated))
	sb.WriteString(fmt.Sprintf("# Entities: %d | Files: %d | Modules: %d\n",
		o.Metadata.EntityCount, o.Metadata.FileCount, o.Metadata.ModuleCount))
	if o.Metadata.Truncated {
		sb.WriteString("# Truncated to the most depended-on entities\n")
	}
	sb.WriteString("\n")

	for _, mod := range o.Modules {
		sb.WriteString(fmt.Sprintf("## %s/\n\n", mod.Path))
		for _, file := range mod.Files {
			sb.WriteString(fmt.Sprintf("  ! %s\n", file.Name))
			for _, e := range file.Entities {
				sb.WriteString(entityLine(e) + "\n")
			}
			sb.WriteString("\n")
		}
	}

	if len(o.Bridges) > 0 {
		sb.WriteString("## Bridges\n\n")
		for _, b := range o.Bridges {
			sb.WriteString(fmt.Sprintf("  %s -> %s  edges=%d  %s -> %s\n",
				b.FromModule, b.ToModule, b.EdgeCount, b.TopCaller, b.TopCallee))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	sb.WriteString("Legend:\n")
	sb.WriteString("  !  = file\n")
	sb.WriteString("  $  = type (struct, class, interface, ...)\n")
	sb.WriteString("  #  = function/method\n")
	sb.WriteString("  in/out = dependents/dependencies\n")
	sb.WriteString("  ★  = importance\n")
	return sb.String()
}

func entityLine(e OutlineEntity) string {
	prefix, indent := "$", "    "
	if model.IsCallable(e.Type) {
		prefix, indent = "#", "      "
	}

	line := fmt.Sprintf("%s%s %s", indent, prefix, e.Name)
	if model.IsCallable(e.Type) {
		line += "()"
	}
	if pad := 30 - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}

	line += fmt.Sprintf("  :%d", e.Line)
	if e.Inbound > 0 || e.Outbound > 0 {
		line += fmt.Sprintf("  in=%d out=%d", e.Inbound, e.Outbound)
	}
	if e.Importance > int(ImportanceLow) {
		line += " " + strings.Repeat("★", e.Importance)
	}
	if e.Test {
		line += "  test"
	}
	return line
}
