package graph

import (
	"context"
	"math"
	"strconv"
	"testing"

	"isg/internal/errors"
	"isg/internal/model"
)

func TestPageRankChainSinkHighest(t *testing.T) {
	g := buildGraph("A->B", "B->C", "C->D", "D->E")

	result, err := g.Centrality(context.Background(), CentralityOptions{})
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}
	if result.Method != MethodPageRank {
		t.Errorf("Expected pagerank method, got %s", result.Method)
	}
	if result.Iterations == 0 {
		t.Error("Expected at least one iteration")
	}
	if len(result.Scores) != 5 {
		t.Fatalf("Expected 5 scores, got %d", len(result.Scores))
	}
	if result.Scores[0].Key != fnKey("E") {
		t.Errorf("Expected sink E ranked first, got %s", result.Scores[0].Key)
	}
	if result.Scores[4].Key != fnKey("A") {
		t.Errorf("Expected source A ranked last, got %s", result.Scores[4].Key)
	}

	sum := 0.0
	for _, s := range result.Scores {
		sum += s.Score
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("Expected scores to sum to 1, got %f", sum)
	}
	if result.TotalNodes != 5 || result.TotalEdges != 4 {
		t.Errorf("Expected 5 nodes and 4 edges, got %d and %d", result.TotalNodes, result.TotalEdges)
	}
}

func TestPageRankEmptyGraph(t *testing.T) {
	g := Build(context.Background(), nil, nil)
	result, err := g.Centrality(context.Background(), CentralityOptions{})
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}
	if len(result.Scores) != 0 {
		t.Errorf("Expected no scores, got %d", len(result.Scores))
	}
}

func TestPersonalizedPageRankMultipleSeeds(t *testing.T) {
	g := buildGraph("A->B", "C->B", "B->D", "X->Y")

	opts := DefaultCentralityOptions()
	opts.Seeds = []string{fnKey("A"), fnKey("C")}
	result, err := g.Centrality(context.Background(), opts)
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}

	found := map[string]bool{}
	for _, r := range result.Scores {
		found[r.Key] = true
	}
	if !found[fnKey("B")] || !found[fnKey("D")] {
		t.Error("Expected B and D reachable from the seeds")
	}
	if found[fnKey("X")] || found[fnKey("Y")] {
		t.Error("Expected nodes unreachable from the seeds to score zero")
	}
	if len(result.Seeds) != 2 {
		t.Errorf("Expected 2 seeds, got %v", result.Seeds)
	}
}

func TestPersonalizedPageRankNonexistentSeeds(t *testing.T) {
	g := buildGraph("A->B")

	opts := DefaultCentralityOptions()
	opts.Seeds = []string{"go:fn:X:x_go:1-1", "go:fn:Y:y_go:1-1"}
	_, err := g.Centrality(context.Background(), opts)
	if !errors.Is(err, errors.EntityNotFound) {
		t.Errorf("Expected EntityNotFound for nonexistent seeds, got %v", err)
	}
}

func TestPersonalizedPageRankPathBacktracking(t *testing.T) {
	g := buildGraph("A->B", "B->C", "C->D")

	opts := DefaultCentralityOptions()
	opts.Seeds = []string{fnKey("A")}
	opts.IncludePaths = true
	result, err := g.Centrality(context.Background(), opts)
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}

	for _, r := range result.Scores {
		if r.Key != fnKey("D") {
			continue
		}
		if len(r.Path) != 4 || r.Path[0] != fnKey("A") || r.Path[3] != fnKey("D") {
			t.Errorf("Expected path A..D, got %v", names(r.Path))
		}
		return
	}
	t.Error("Expected D in results")
}

func TestPageRankEdgeWeights(t *testing.T) {
	a, b, c := fnEntity("a"), fnEntity("b"), fnEntity("c")
	g := Build(context.Background(), []model.Entity{a, b, c}, []model.Edge{
		{FromKey: a.Key, ToKey: b.Key, EdgeType: model.EdgeCalls},
		{FromKey: a.Key, ToKey: c.Key, EdgeType: model.EdgeIncludes},
	})

	opts := DefaultCentralityOptions()
	opts.Seeds = []string{a.Key}
	result, err := g.Centrality(context.Background(), opts)
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}
	score := map[string]float64{}
	for _, s := range result.Scores {
		score[s.Key] = s.Score
	}
	if score[b.Key] <= score[c.Key] {
		t.Errorf("Expected call target to outrank include target: b=%f c=%f", score[b.Key], score[c.Key])
	}
}

func TestBetweennessChainMiddleHighest(t *testing.T) {
	g := buildGraph("A->B", "B->C", "C->D", "D->E")

	opts := DefaultCentralityOptions()
	opts.Method = MethodBetweenness
	result, err := g.Centrality(context.Background(), opts)
	if err != nil {
		t.Fatalf("Centrality failed: %v", err)
	}
	if len(result.Scores) == 0 || result.Scores[0].Key != fnKey("C") {
		t.Fatalf("Expected C ranked first, got %+v", result.Scores)
	}
	// C lies on A->D, A->E, B->D and B->E: 4 of the 12 ordered pairs.
	if math.Abs(result.Scores[0].Score-4.0/12.0) > 1e-9 {
		t.Errorf("Expected normalized score 1/3, got %f", result.Scores[0].Score)
	}
}

func TestCentralityUnknownMethod(t *testing.T) {
	opts := DefaultCentralityOptions()
	opts.Method = "eigen"
	_, err := buildGraph("A->B").Centrality(context.Background(), opts)
	if !errors.Is(err, errors.InvalidArgument) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func BenchmarkPageRank(b *testing.B) {
	// Create a moderate-sized graph
	numNodes := 1000
	var specs []string
	for i := range numNodes {
		for j := 1; j <= 5; j++ {
			specs = append(specs, nodeName(i)+"->"+nodeName((i+j)%numNodes))
		}
	}
	g := buildGraph(specs...)

	ctx := context.Background()
	opts := DefaultCentralityOptions()
	opts.Seeds = []string{fnKey(nodeName(0))}

	b.ResetTimer()
	for range b.N {
		_, _ = g.Centrality(ctx, opts)
	}
}

func nodeName(i int) string {
	return "node_" + strconv.Itoa(i)
}
