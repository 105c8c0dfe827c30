package graph

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// CouplingOptions configures a coupling ranking.
type CouplingOptions struct {
	// TopN limits the ranking; zero or less returns every participant.
	TopN int
	// ExcludeExternal drops unresolved external targets from the ranking.
	ExcludeExternal bool
	// ExcludeTests drops TEST entities from the ranking.
	ExcludeTests bool
}

// CouplingScore is the edge count around one entity.
type CouplingScore struct {
	Key      string `json:"key" yaml:"key"`
	Inbound  int    `json:"inbound" yaml:"inbound"`
	Outbound int    `json:"outbound" yaml:"outbound"`
	Total    int    `json:"total" yaml:"total"`
	External bool   `json:"external,omitempty" yaml:"external,omitempty"`
}

// CouplingReport is a ranking by total coupling.
type CouplingReport struct {
	Scores        []CouplingScore `json:"scores" yaml:"scores"`
	Considered    int             `json:"considered" yaml:"considered"`
	TokenEstimate int             `json:"tokenEstimate" yaml:"tokenEstimate"`
}

// Coupling scores every node as inbound plus outbound edge count and ranks
// by total descending, ties broken by key ascending. Edge counts include
// edges to filtered nodes; filters only decide who is ranked.
func (g *Graph) Coupling(ctx context.Context, opts CouplingOptions) (*CouplingReport, error) {
	_, span := tracer.Start(ctx, "graph.Coupling")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]CouplingScore, 0, len(g.nodes))
	for i, key := range g.nodes {
		external := g.isExternal(i)
		if opts.ExcludeExternal && external {
			continue
		}
		if opts.ExcludeTests && g.isTest(i) {
			continue
		}
		in, out := len(g.inEdges[i]), len(g.outEdges[i])
		scores = append(scores, CouplingScore{
			Key:      key,
			Inbound:  in,
			Outbound: out,
			Total:    in + out,
			External: external,
		})
	}

	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].Total != scores[b].Total {
			return scores[a].Total > scores[b].Total
		}
		return scores[a].Key < scores[b].Key
	})

	report := &CouplingReport{Considered: len(scores)}
	if opts.TopN > 0 && len(scores) > opts.TopN {
		scores = scores[:opts.TopN]
	}
	report.Scores = scores
	report.TokenEstimate = CouplingTokens(len(scores))
	span.SetAttributes(attribute.Int("graph.ranked", len(scores)))
	return report, nil
}
