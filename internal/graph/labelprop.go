package graph

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultClusterIterations caps label propagation when no cap is given.
const DefaultClusterIterations = 10

// ClusterOptions configures label propagation.
type ClusterOptions struct {
	MaxIterations int
	// IncludeExternal keeps unresolved external targets in the projection.
	// They are left out by default so shared library calls do not glue
	// unrelated code together.
	IncludeExternal bool
	// MinSize hides clusters smaller than this from the report.
	MinSize int
}

// Cluster is one group of entities that settled on the same label.
type Cluster struct {
	ID         int      `json:"id" yaml:"id"`
	Size       int      `json:"size" yaml:"size"`
	Keys       []string `json:"keys" yaml:"keys"`
	IntraEdges int      `json:"intraEdges" yaml:"intraEdges"`
	InterEdges int      `json:"interEdges" yaml:"interEdges"`
}

// ClusterReport is a partition of the graph's nodes.
type ClusterReport struct {
	Clusters      []Cluster `json:"clusters" yaml:"clusters"`
	Iterations    int       `json:"iterations" yaml:"iterations"`
	Converged     bool      `json:"converged" yaml:"converged"`
	TokenEstimate int       `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// Clusters runs label propagation over the undirected projection. Nodes
// start with their index as label and, in key order, adopt the most frequent
// label among their neighbors, ties going to the lowest label. It stops when
// a full pass changes nothing or when the iteration cap is reached; in the
// latter case Converged is false and the partition is best effort.
func (g *Graph) Clusters(ctx context.Context, opts ClusterOptions) (*ClusterReport, error) {
	_, span := tracer.Start(ctx, "graph.Clusters")
	defer span.End()

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultClusterIterations
	}
	keep := func(i int) bool { return opts.IncludeExternal || !g.isExternal(i) }
	adj := g.undirected(keep)

	labels := make([]int, len(g.nodes))
	for i := range labels {
		labels[i] = i
	}

	report := &ClusterReport{}
	counts := make(map[int]int)
	for report.Iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Iterations++
		changed := false
		for i := range g.nodes {
			if len(adj[i]) == 0 {
				continue
			}
			clear(counts)
			for _, n := range adj[i] {
				counts[labels[n]]++
			}
			best, bestCount := labels[i], 0
			for label, c := range counts {
				if c > bestCount || (c == bestCount && label < best) {
					best, bestCount = label, c
				}
			}
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			report.Converged = true
			break
		}
	}

	report.Clusters = g.partition(labels, keep, opts.MinSize)
	keyBytes := 0
	for _, c := range report.Clusters {
		for _, k := range c.Keys {
			keyBytes += len(k)
		}
	}
	report.TokenEstimate = ClusterTokens(len(report.Clusters), keyBytes)
	span.SetAttributes(
		attribute.Int("graph.clusters", len(report.Clusters)),
		attribute.Int("graph.iterations", report.Iterations),
		attribute.Bool("graph.converged", report.Converged),
	)
	return report, nil
}

// partition groups nodes by label, counts intra and inter edges, and numbers
// clusters 1..n by size descending then first key.
func (g *Graph) partition(labels []int, keep func(int) bool, minSize int) []Cluster {
	groups := make(map[int][]int)
	for i, label := range labels {
		if keep(i) {
			groups[label] = append(groups[label], i)
		}
	}

	clusters := make([]Cluster, 0, len(groups))
	for label, members := range groups {
		if len(members) < minSize {
			continue
		}
		c := Cluster{Size: len(members), Keys: make([]string, len(members))}
		for j, idx := range members {
			c.Keys[j] = g.nodes[idx]
		}
		for _, idx := range members {
			for _, e := range g.outEdges[idx] {
				if !keep(e.target) {
					continue
				}
				if labels[e.target] == label {
					c.IntraEdges++
				} else {
					c.InterEdges++
				}
			}
			for _, e := range g.inEdges[idx] {
				if keep(e.target) && labels[e.target] != label {
					c.InterEdges++
				}
			}
		}
		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(a, b int) bool {
		if clusters[a].Size != clusters[b].Size {
			return clusters[a].Size > clusters[b].Size
		}
		return clusters[a].Keys[0] < clusters[b].Keys[0]
	})
	for i := range clusters {
		clusters[i].ID = i + 1
	}
	return clusters
}
