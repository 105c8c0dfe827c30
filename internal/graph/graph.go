// Package graph runs read-only analyses over an immutable snapshot of the
// entity graph.
package graph

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"isg/internal/isgkey"
	"isg/internal/model"
)

var tracer = otel.Tracer("isg.graph")

type edgeEntry struct {
	target int // neighbor node index
	edge   int // index into Graph.edges
}

// Graph is an immutable snapshot of entities and edges. Node indices follow
// ascending key order, so iterating by index is iterating in key order.
type Graph struct {
	nodes    []string
	nodeIdx  map[string]int
	entities []*model.Entity // nil for nodes that only appear as edge endpoints

	edges    []model.Edge
	outEdges [][]edgeEntry
	inEdges  [][]edgeEntry

	resolved int
}

// Build constructs a snapshot. External call targets are resolved by name
// to an in-tree callable of the same language; when several match, the
// lowest key wins. Unmatched targets stay external.
func Build(ctx context.Context, entities []model.Entity, edges []model.Edge) *Graph {
	_, span := tracer.Start(ctx, "graph.Build")
	defer span.End()

	res := newResolver(entities)
	keys := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		keys[e.Key] = struct{}{}
	}

	g := &Graph{edges: make([]model.Edge, 0, len(edges))}
	seen := make(map[model.EdgeID]bool, len(edges))
	for _, e := range edges {
		if to, ok := res.resolve(e.ToKey); ok {
			e.ToKey = to
			g.resolved++
		}
		if seen[e.ID()] {
			continue
		}
		seen[e.ID()] = true
		keys[e.FromKey] = struct{}{}
		keys[e.ToKey] = struct{}{}
		g.edges = append(g.edges, e)
	}

	g.nodes = make([]string, 0, len(keys))
	for k := range keys {
		g.nodes = append(g.nodes, k)
	}
	sort.Strings(g.nodes)

	n := len(g.nodes)
	g.nodeIdx = make(map[string]int, n)
	for i, k := range g.nodes {
		g.nodeIdx[k] = i
	}
	g.entities = make([]*model.Entity, n)
	owned := append([]model.Entity(nil), entities...)
	for i := range owned {
		g.entities[g.nodeIdx[owned[i].Key]] = &owned[i]
	}

	g.outEdges = make([][]edgeEntry, n)
	g.inEdges = make([][]edgeEntry, n)
	for i, e := range g.edges {
		from, to := g.nodeIdx[e.FromKey], g.nodeIdx[e.ToKey]
		g.outEdges[from] = append(g.outEdges[from], edgeEntry{target: to, edge: i})
		g.inEdges[to] = append(g.inEdges[to], edgeEntry{target: from, edge: i})
	}
	for i := range g.outEdges {
		g.sortEntries(g.outEdges[i])
		g.sortEntries(g.inEdges[i])
	}

	span.SetAttributes(
		attribute.Int("graph.nodes", n),
		attribute.Int("graph.edges", len(g.edges)),
		attribute.Int("graph.resolved", g.resolved),
	)
	return g
}

func (g *Graph) sortEntries(list []edgeEntry) {
	sort.Slice(list, func(a, b int) bool {
		if list[a].target != list[b].target {
			return list[a].target < list[b].target
		}
		return g.edges[list[a].edge].EdgeType < g.edges[list[b].edge].EdgeType
	})
}

// NumNodes returns the number of nodes, external targets included.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the number of distinct edges after resolution.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// NumResolved returns how many external targets were resolved in-tree.
func (g *Graph) NumResolved() int {
	return g.resolved
}

// Nodes returns all node keys in ascending order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// HasNode checks if a node exists in the graph.
func (g *Graph) HasNode(key string) bool {
	_, ok := g.nodeIdx[key]
	return ok
}

// Entity returns the stored entity for key. Edge endpoints without an
// entity row, such as external targets, report false.
func (g *Graph) Entity(key string) (model.Entity, bool) {
	idx, ok := g.nodeIdx[key]
	if !ok || g.entities[idx] == nil {
		return model.Entity{}, false
	}
	return *g.entities[idx], true
}

// IsExternal reports whether key is an unresolved external target.
func (g *Graph) IsExternal(key string) bool {
	idx, ok := g.nodeIdx[key]
	return ok && g.isExternal(idx)
}

func (g *Graph) isExternal(idx int) bool {
	if g.entities[idx] != nil {
		return false
	}
	k, err := isgkey.Parse(g.nodes[idx])
	return err == nil && isgkey.IsExternalKey(k)
}

func (g *Graph) isTest(idx int) bool {
	return g.entities[idx] != nil && g.entities[idx].Class == model.ClassTest
}

// ForwardEdges returns the edges leaving key, ordered by target key.
func (g *Graph) ForwardEdges(key string) []model.Edge {
	return g.collect(key, g.outEdges)
}

// ReverseEdges returns the edges arriving at key, ordered by source key.
// Edges whose stored target was resolved to key by name are included.
func (g *Graph) ReverseEdges(key string) []model.Edge {
	return g.collect(key, g.inEdges)
}

func (g *Graph) collect(key string, adj [][]edgeEntry) []model.Edge {
	idx, ok := g.nodeIdx[key]
	if !ok {
		return []model.Edge{}
	}
	out := make([]model.Edge, len(adj[idx]))
	for i, e := range adj[idx] {
		out[i] = g.edges[e.edge]
	}
	return out
}

// Neighbors returns the distinct outgoing neighbors of a node in key order.
func (g *Graph) Neighbors(key string) []string {
	idx, ok := g.nodeIdx[key]
	if !ok {
		return nil
	}
	var neighbors []string
	prev := -1
	for _, e := range g.outEdges[idx] {
		if e.target != prev {
			neighbors = append(neighbors, g.nodes[e.target])
			prev = e.target
		}
	}
	return neighbors
}

// successors returns distinct outgoing neighbor indices in ascending order.
func (g *Graph) successors(idx int) []int {
	return distinctTargets(g.outEdges[idx])
}

func (g *Graph) predecessors(idx int) []int {
	return distinctTargets(g.inEdges[idx])
}

func distinctTargets(list []edgeEntry) []int {
	out := make([]int, 0, len(list))
	for _, e := range list {
		if n := len(out); n == 0 || out[n-1] != e.target {
			out = append(out, e.target)
		}
	}
	return out
}

// undirected builds the undirected projection without self-loops. Nodes
// rejected by keep are left out entirely.
func (g *Graph) undirected(keep func(int) bool) [][]int {
	adj := make([][]int, len(g.nodes))
	for i := range g.nodes {
		if !keep(i) {
			continue
		}
		seen := make(map[int]bool)
		for _, list := range [][]edgeEntry{g.outEdges[i], g.inEdges[i]} {
			for _, e := range list {
				if e.target == i || seen[e.target] || !keep(e.target) {
					continue
				}
				seen[e.target] = true
				adj[i] = append(adj[i], e.target)
			}
		}
		sort.Ints(adj[i])
	}
	return adj
}

// resolver maps external call targets to in-tree callables.
type resolver struct {
	byName map[string]string // language + "\x00" + sanitized name -> lowest key
}

func newResolver(entities []model.Entity) *resolver {
	r := &resolver{byName: make(map[string]string)}
	for _, e := range entities {
		if !model.IsCallable(e.EntityType) {
			continue
		}
		name := isgkey.Sanitize(e.Name)
		r.add(e.Language, name, e.Key)
		if local := isgkey.LocalName(name); local != name {
			r.add(e.Language, local, e.Key)
		}
	}
	return r
}

func (r *resolver) add(language, name, key string) {
	id := language + "\x00" + name
	if cur, ok := r.byName[id]; !ok || key < cur {
		r.byName[id] = key
	}
}

func (r *resolver) resolve(toKey string) (string, bool) {
	t, err := isgkey.ParseTarget(toKey)
	if err != nil || !t.IsExternal() {
		return "", false
	}
	k := t.Key()
	if !model.IsCallable(k.EntityType) {
		return "", false
	}
	if key, ok := r.byName[k.Language+"\x00"+k.Name]; ok {
		return key, true
	}
	if local := isgkey.LocalName(k.Name); local != k.Name {
		if key, ok := r.byName[k.Language+"\x00"+local]; ok {
			return key, true
		}
	}
	return "", false
}
