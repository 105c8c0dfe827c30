package graph

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// CoreLayer buckets coreness into architectural layers.
type CoreLayer string

const (
	LayerCore       CoreLayer = "core"
	LayerMid        CoreLayer = "mid"
	LayerPeripheral CoreLayer = "peripheral"
)

// ClassifyCoreness maps a coreness value to its layer.
func ClassifyCoreness(k int) CoreLayer {
	switch {
	case k >= 8:
		return LayerCore
	case k >= 3:
		return LayerMid
	default:
		return LayerPeripheral
	}
}

// KCoreOptions configures k-core reporting.
type KCoreOptions struct {
	// TopN limits the entries; zero or less returns all.
	TopN            int
	IncludeExternal bool
}

// KCoreEntry is the coreness of one node.
type KCoreEntry struct {
	Key      string    `json:"key" yaml:"key"`
	Coreness int       `json:"coreness" yaml:"coreness"`
	Layer    CoreLayer `json:"layer" yaml:"layer"`
}

// KCoreReport ranks nodes by coreness.
type KCoreReport struct {
	Entries       []KCoreEntry      `json:"entries" yaml:"entries"`
	MaxCore       int               `json:"maxCore" yaml:"maxCore"`
	Layers        map[CoreLayer]int `json:"layers" yaml:"layers"`
	TokenEstimate int               `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// KCore computes each node's coreness on the undirected projection by
// repeatedly peeling the lowest-degree node. Entries are ordered by coreness
// descending, then key.
func (g *Graph) KCore(ctx context.Context, opts KCoreOptions) (*KCoreReport, error) {
	_, span := tracer.Start(ctx, "graph.KCore")
	defer span.End()

	keep := func(i int) bool { return opts.IncludeExternal || !g.isExternal(i) }
	adj := g.undirected(keep)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	core := coreness(adj, keep)

	report := &KCoreReport{Layers: map[CoreLayer]int{}}
	entries := make([]KCoreEntry, 0, len(g.nodes))
	for i, key := range g.nodes {
		if !keep(i) {
			continue
		}
		layer := ClassifyCoreness(core[i])
		report.Layers[layer]++
		report.MaxCore = max(report.MaxCore, core[i])
		entries = append(entries, KCoreEntry{Key: key, Coreness: core[i], Layer: layer})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Coreness != entries[b].Coreness {
			return entries[a].Coreness > entries[b].Coreness
		}
		return entries[a].Key < entries[b].Key
	})
	if opts.TopN > 0 && len(entries) > opts.TopN {
		entries = entries[:opts.TopN]
	}
	report.Entries = entries
	report.TokenEstimate = CouplingTokens(len(entries))
	span.SetAttributes(attribute.Int("graph.max_core", report.MaxCore))
	return report, nil
}

// coreness is the bucket-based peeling algorithm: process vertices in order
// of current degree, decrementing the degree of unprocessed neighbors.
func coreness(adj [][]int, keep func(int) bool) []int {
	n := len(adj)
	deg := make([]int, n)
	maxDeg := 0
	for i := range adj {
		deg[i] = len(adj[i])
		maxDeg = max(maxDeg, deg[i])
	}

	// Vertices sorted by degree with bucket start offsets.
	bin := make([]int, maxDeg+1)
	for i := 0; i < n; i++ {
		if keep(i) {
			bin[deg[i]]++
		}
	}
	start := 0
	for d := range bin {
		count := bin[d]
		bin[d] = start
		start += count
	}
	vert := make([]int, start)
	pos := make([]int, n)
	for i := 0; i < n; i++ {
		if !keep(i) {
			continue
		}
		pos[i] = bin[deg[i]]
		vert[pos[i]] = i
		bin[deg[i]]++
	}
	for d := maxDeg; d > 0; d-- {
		bin[d] = bin[d-1]
	}
	bin[0] = 0

	for i := range vert {
		v := vert[i]
		for _, u := range adj[v] {
			if deg[u] <= deg[v] {
				continue
			}
			du := deg[u]
			pu := pos[u]
			pw := bin[du]
			w := vert[pw]
			if u != w {
				pos[u], pos[w] = pw, pu
				vert[pu], vert[pw] = w, u
			}
			bin[du]++
			deg[u]--
		}
	}
	return deg
}
