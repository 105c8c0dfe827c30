package graph

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"isg/internal/errors"
	"isg/internal/model"
)

// EdgeWeights defines how strongly each edge type carries rank.
type EdgeWeights map[model.EdgeType]float64

// DefaultEdgeWeights returns sensible defaults for edge weights.
func DefaultEdgeWeights() EdgeWeights {
	return EdgeWeights{
		model.EdgeCalls:      1.0,
		model.EdgeUses:       0.8,
		model.EdgeImplements: 0.7,
		model.EdgeExtends:    0.7,
		model.EdgeIncludes:   0.3,
	}
}

func (w EdgeWeights) of(t model.EdgeType) float64 {
	if v, ok := w[t]; ok {
		return v
	}
	return 0.5
}

// Centrality methods.
const (
	MethodPageRank    = "pagerank"
	MethodBetweenness = "betweenness"
)

// CentralityOptions configures a centrality computation.
type CentralityOptions struct {
	// Method is MethodPageRank (default) or MethodBetweenness.
	Method string

	// Damping is the probability of following an edge vs teleporting (default: 0.85)
	Damping float64

	// MaxIterations is the maximum number of power iterations (default: 100)
	MaxIterations int

	// Tolerance for convergence detection (default: 1e-6)
	Tolerance float64

	// TopK is the number of top results to return (default: 20)
	TopK int

	// Seeds personalizes PageRank: teleports land only on these keys.
	Seeds []string

	// IncludePaths explains personalized results with a path from a seed
	IncludePaths bool

	// Weights overrides DefaultEdgeWeights
	Weights EdgeWeights

	ExcludeExternal bool
}

// DefaultCentralityOptions returns sensible defaults for PageRank.
func DefaultCentralityOptions() CentralityOptions {
	return CentralityOptions{
		Method:        MethodPageRank,
		Damping:       0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
		TopK:          20,
	}
}

// CentralityScore is a ranked node.
type CentralityScore struct {
	Key   string   `json:"key" yaml:"key"`
	Score float64  `json:"score" yaml:"score"`
	Path  []string `json:"path,omitempty" yaml:"path,omitempty"` // Path from seed to this node
}

// CentralityReport contains the full centrality result.
type CentralityReport struct {
	Method        string            `json:"method" yaml:"method"`
	Scores        []CentralityScore `json:"scores" yaml:"scores"`
	Iterations    int               `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Converged     bool              `json:"converged" yaml:"converged"`
	Seeds         []string          `json:"seeds,omitempty" yaml:"seeds,omitempty"`
	TotalNodes    int               `json:"totalNodes" yaml:"totalNodes"`
	TotalEdges    int               `json:"totalEdges" yaml:"totalEdges"`
	ComputationMs int64             `json:"computationMs" yaml:"computationMs"`
	TokenEstimate int               `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// Centrality ranks nodes by PageRank (optionally personalized on Seeds) or
// by betweenness.
func (g *Graph) Centrality(ctx context.Context, opts CentralityOptions) (*CentralityReport, error) {
	defaults := DefaultCentralityOptions()
	if opts.Method == "" {
		opts.Method = defaults.Method
	}
	if opts.TopK <= 0 {
		opts.TopK = defaults.TopK
	}
	start := time.Now()

	var (
		report *CentralityReport
		err    error
	)
	switch opts.Method {
	case MethodPageRank:
		report, err = g.pageRank(ctx, opts)
	case MethodBetweenness:
		report, err = g.betweenness(ctx, opts)
	default:
		return nil, errors.Newf(errors.InvalidArgument, "unknown centrality method %q", opts.Method)
	}
	if err != nil {
		return nil, err
	}
	report.Method = opts.Method
	report.TotalNodes = len(g.nodes)
	report.TotalEdges = len(g.edges)
	report.ComputationMs = time.Since(start).Milliseconds()
	report.TokenEstimate = CouplingTokens(len(report.Scores))
	return report, nil
}

func (g *Graph) pageRank(ctx context.Context, opts CentralityOptions) (*CentralityReport, error) {
	_, span := tracer.Start(ctx, "graph.PageRank")
	defer span.End()

	// Apply defaults
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.Weights == nil {
		opts.Weights = DefaultEdgeWeights()
	}

	n := len(g.nodes)
	report := &CentralityReport{Scores: []CentralityScore{}}
	if n == 0 {
		report.Converged = true
		return report, nil
	}

	// Teleport vector: uniform over seeds, or over all nodes.
	teleport := make([]float64, n)
	seedSet := make(map[int]bool)
	if len(opts.Seeds) > 0 {
		for _, s := range opts.Seeds {
			if idx, ok := g.nodeIdx[s]; ok && !seedSet[idx] {
				seedSet[idx] = true
				report.Seeds = append(report.Seeds, s)
			}
		}
		if len(seedSet) == 0 {
			return nil, errors.Newf(errors.EntityNotFound, "none of the %d seed keys exist", len(opts.Seeds))
		}
		for idx := range seedSet {
			teleport[idx] = 1.0 / float64(len(seedSet))
		}
	} else {
		for i := range teleport {
			teleport[i] = 1.0 / float64(n)
		}
	}

	scores := make([]float64, n)
	copy(scores, teleport)

	// Pre-compute out-degree normalization
	outDegree := make([]float64, n)
	for i, edges := range g.outEdges {
		for _, e := range edges {
			outDegree[i] += opts.Weights.of(g.edges[e.edge].EdgeType)
		}
	}

	newScores := make([]float64, n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Iterations = iter + 1

		for i := range newScores {
			newScores[i] = 0
		}

		// Mass held by nodes without out-edges is redistributed along the
		// teleport vector so scores keep summing to one.
		dangling := 0.0
		for i, edges := range g.outEdges {
			if len(edges) == 0 || outDegree[i] == 0 {
				dangling += scores[i]
				continue
			}
			contrib := scores[i] / outDegree[i]
			for _, e := range edges {
				newScores[e.target] += contrib * opts.Weights.of(g.edges[e.edge].EdgeType)
			}
		}

		maxDiff := 0.0
		for i := range newScores {
			newScores[i] = opts.Damping*(newScores[i]+dangling*teleport[i]) + (1-opts.Damping)*teleport[i]
			maxDiff = math.Max(maxDiff, math.Abs(newScores[i]-scores[i]))
		}

		scores, newScores = newScores, scores

		if maxDiff < opts.Tolerance {
			report.Converged = true
			break
		}
	}

	report.Scores = g.rank(scores, opts)
	if opts.IncludePaths && len(seedSet) > 0 {
		for i := range report.Scores {
			idx := g.nodeIdx[report.Scores[i].Key]
			if !seedSet[idx] {
				report.Scores[i].Path = g.backtrackPath(idx, seedSet, 5, opts.Weights)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("graph.iterations", report.Iterations),
		attribute.Bool("graph.converged", report.Converged),
		attribute.Int("graph.seeds", len(seedSet)),
	)
	return report, nil
}

// rank sorts positive scores descending, ties by key, and keeps TopK.
func (g *Graph) rank(scores []float64, opts CentralityOptions) []CentralityScore {
	ranked := make([]CentralityScore, 0, len(scores))
	for i, s := range scores {
		if s <= 0 || (opts.ExcludeExternal && g.isExternal(i)) {
			continue
		}
		ranked = append(ranked, CentralityScore{Key: g.nodes[i], Score: s})
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].Key < ranked[b].Key
	})
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}
	return ranked
}

// backtrackPath finds a path from the target back to any seed node.
// Uses greedy backtracking following incoming edges with highest weight.
func (g *Graph) backtrackPath(target int, seedSet map[int]bool, maxDepth int, weights EdgeWeights) []string {
	path := []string{g.nodes[target]}
	current := target
	visited := map[int]bool{target: true}

	for depth := 0; depth < maxDepth; depth++ {
		bestPrev := -1
		bestWeight := 0.0
		for _, e := range g.inEdges[current] {
			w := weights.of(g.edges[e.edge].EdgeType)
			if !visited[e.target] && w > bestWeight {
				bestWeight = w
				bestPrev = e.target
			}
		}
		if bestPrev < 0 {
			break
		}

		path = append(path, g.nodes[bestPrev])
		visited[bestPrev] = true
		if seedSet[bestPrev] {
			break
		}
		current = bestPrev
	}

	// Reverse path to go from seed to target
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// betweenness computes unweighted directed betweenness with Brandes'
// algorithm, normalized by (n-1)(n-2).
func (g *Graph) betweenness(ctx context.Context, opts CentralityOptions) (*CentralityReport, error) {
	_, span := tracer.Start(ctx, "graph.Betweenness")
	defer span.End()

	n := len(g.nodes)
	cb := make([]float64, n)
	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)

	for s := 0; s < n; s++ {
		if s%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i := 0; i < n; i++ {
			sigma[i], dist[i], delta[i] = 0, -1, 0
			preds[i] = preds[i][:0]
		}
		sigma[s], dist[s] = 1, 0

		order := make([]int, 0, n)
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			for _, w := range g.successors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	if n > 2 {
		norm := float64((n - 1) * (n - 2))
		for i := range cb {
			cb[i] /= norm
		}
	}

	report := &CentralityReport{Converged: true, Scores: g.rank(cb, opts)}
	span.SetAttributes(attribute.Int("graph.ranked", len(report.Scores)))
	return report, nil
}
