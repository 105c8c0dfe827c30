package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type color uint8

const (
	notVisited color = iota
	visiting
	visited
)

// Cycle is one dependency cycle, listed in traversal order starting at the
// node the back-edge points to. A self-loop is a one-node cycle.
type Cycle struct {
	Keys   []string `json:"keys" yaml:"keys"`
	Length int      `json:"length" yaml:"length"`
}

// CycleReport lists every cycle found by one scan.
type CycleReport struct {
	Cycles        []Cycle `json:"cycles" yaml:"cycles"`
	NodesScanned  int     `json:"nodesScanned" yaml:"nodesScanned"`
	TokenEstimate int     `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// Cycles runs a three-color depth-first search over every node in key order,
// visiting neighbors in key order. Each back-edge to a node still on the
// stack yields one cycle, so repeated scans report the same cycles in the
// same order.
func (g *Graph) Cycles(ctx context.Context) (*CycleReport, error) {
	_, span := tracer.Start(ctx, "graph.Cycles")
	defer span.End()

	colors := make([]color, len(g.nodes))
	onPath := make([]int, len(g.nodes)) // position on the current path, valid while visiting
	var path []int
	report := &CycleReport{Cycles: []Cycle{}}

	var visit func(int)
	visit = func(u int) {
		colors[u] = visiting
		onPath[u] = len(path)
		path = append(path, u)

		for _, v := range g.successors(u) {
			switch colors[v] {
			case notVisited:
				visit(v)
			case visiting:
				members := path[onPath[v]:]
				keys := make([]string, len(members))
				for i, idx := range members {
					keys[i] = g.nodes[idx]
				}
				report.Cycles = append(report.Cycles, Cycle{Keys: keys, Length: len(keys)})
			}
		}

		path = path[:len(path)-1]
		colors[u] = visited
	}

	for i := range g.nodes {
		if colors[i] != notVisited {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visit(i)
	}

	report.NodesScanned = len(g.nodes)
	pathNodes := 0
	for _, c := range report.Cycles {
		pathNodes += c.Length
	}
	report.TokenEstimate = CycleTokens(len(report.Cycles), pathNodes)
	span.SetAttributes(attribute.Int("graph.cycles", len(report.Cycles)))
	return report, nil
}
