package graph

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// RiskLevel grades a strongly connected component by size.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ClassifyRisk grades a component of size members. A single node is only a
// risk when it calls itself.
func ClassifyRisk(size int, selfLoop bool) RiskLevel {
	switch {
	case size >= 3:
		return RiskHigh
	case size == 2, selfLoop:
		return RiskMedium
	default:
		return RiskNone
	}
}

// SCCOptions configures component reporting.
type SCCOptions struct {
	// IncludeTrivial also reports single nodes without a self-loop.
	IncludeTrivial bool
}

// Component is one strongly connected component.
type Component struct {
	Keys []string  `json:"keys" yaml:"keys"`
	Size int       `json:"size" yaml:"size"`
	Risk RiskLevel `json:"risk" yaml:"risk"`
}

// SCCReport lists strongly connected components.
type SCCReport struct {
	Components    []Component `json:"components" yaml:"components"`
	Total         int         `json:"total" yaml:"total"`
	Cyclic        int         `json:"cyclic" yaml:"cyclic"`
	TokenEstimate int         `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// SCC finds strongly connected components with Tarjan's algorithm.
// Components are ordered by size descending, then by first key; member keys
// are sorted.
func (g *Graph) SCC(ctx context.Context, opts SCCOptions) (*SCCReport, error) {
	_, span := tracer.Start(ctx, "graph.SCC")
	defer span.End()

	n := len(g.nodes)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	next := 0
	var comps [][]int

	var connect func(int)
	connect = func(v int) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.successors(v) {
			if index[w] < 0 {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			comps = append(comps, comp)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] >= 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		connect(v)
	}

	report := &SCCReport{Components: []Component{}, Total: len(comps)}
	members := 0
	for _, comp := range comps {
		selfLoop := len(comp) == 1 && g.hasSelfLoop(comp[0])
		risk := ClassifyRisk(len(comp), selfLoop)
		if risk != RiskNone {
			report.Cyclic++
		} else if !opts.IncludeTrivial {
			continue
		}
		sort.Ints(comp)
		keys := make([]string, len(comp))
		for i, idx := range comp {
			keys[i] = g.nodes[idx]
		}
		report.Components = append(report.Components, Component{Keys: keys, Size: len(keys), Risk: risk})
		members += len(keys)
	}
	sort.Slice(report.Components, func(a, b int) bool {
		ca, cb := report.Components[a], report.Components[b]
		if ca.Size != cb.Size {
			return ca.Size > cb.Size
		}
		return ca.Keys[0] < cb.Keys[0]
	})

	report.TokenEstimate = CycleTokens(len(report.Components), members)
	span.SetAttributes(
		attribute.Int("graph.components", report.Total),
		attribute.Int("graph.cyclic", report.Cyclic),
	)
	return report, nil
}

func (g *Graph) hasSelfLoop(idx int) bool {
	for _, e := range g.outEdges[idx] {
		if e.target == idx {
			return true
		}
	}
	return false
}
