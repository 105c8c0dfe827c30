package graph

import (
	"context"
	"fmt"
	"strings"

	"isg/internal/model"
)

// fnKey returns the key of a test function entity named name.
func fnKey(name string) string {
	return fmt.Sprintf("go:fn:%s:pkg_x_go:1-2", name)
}

func fnEntity(name string) model.Entity {
	return model.Entity{
		Key:        fnKey(name),
		Name:       name,
		EntityType: model.TypeFn,
		FilePath:   "pkg/x.go",
		StartLine:  1,
		EndLine:    2,
		Language:   "go",
		Class:      model.ClassCode,
	}
}

// buildGraph builds a snapshot from "A->B" style specs. Every endpoint
// becomes a function entity.
func buildGraph(specs ...string) *Graph {
	seen := map[string]bool{}
	var entities []model.Entity
	var edges []model.Edge
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			entities = append(entities, fnEntity(name))
		}
	}
	for _, s := range specs {
		from, to, ok := strings.Cut(s, "->")
		add(from)
		if !ok {
			continue
		}
		add(to)
		edges = append(edges, model.Edge{FromKey: fnKey(from), ToKey: fnKey(to), EdgeType: model.EdgeCalls})
	}
	return Build(context.Background(), entities, edges)
}

// eightNodeGraph has a diamond into a three-node cycle plus a separate pair.
func eightNodeGraph() *Graph {
	return buildGraph("A->B", "A->C", "B->D", "C->D", "D->E", "E->F", "F->D", "G->H", "H->G")
}

func names(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.Split(k, ":")[2]
	}
	return out
}
