//go:build cgo

package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isg/internal/graph"
	"isg/internal/incremental"
	"isg/internal/isgkey"
	"isg/internal/model"
	"isg/internal/storage"
	"isg/internal/testutil"
)

// findEntity returns the single entity named name in file.
func findEntity(t *testing.T, e *Engine, name, file string) model.Entity {
	t.Helper()
	list, err := e.ListEntities(context.Background(), storage.EntityFilter{FilePath: file, NameContains: name})
	require.NoError(t, err)
	for _, ent := range list.Entities {
		if ent.Name == name {
			return ent
		}
	}
	t.Fatalf("entity %s not found in %s", name, file)
	return model.Entity{}
}

func fromKeys(edges []model.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, ed := range edges {
		out = append(out, ed.FromKey)
	}
	return out
}

func toKeys(edges []model.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, ed := range edges {
		out = append(out, ed.ToKey)
	}
	return out
}

func TestFixtureGoCallChain(t *testing.T) {
	fx := testutil.LoadFixture(t, "go")

	e, err := Open(fx.Root, nil, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	summary, err := e.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.FilesProcessed)
	assert.Zero(t, summary.FilesFailed)

	// Every stored key parses and agrees with its row.
	all, err := e.ListEntities(ctx, storage.EntityFilter{Page: storage.Page{Limit: 500}})
	require.NoError(t, err)
	require.NotEmpty(t, all.Entities)
	for _, ent := range all.Entities {
		k, err := isgkey.Parse(ent.Key)
		require.NoError(t, err, ent.Key)
		assert.Equal(t, isgkey.Sanitize(ent.Name), k.Name)
		assert.Equal(t, ent.StartLine, k.Lines.Start)
	}

	format := findEntity(t, e, "FormatOutput", "internal/util.go")
	handle := findEntity(t, e, "Handle", "pkg/handler.go")
	run := findEntity(t, e, "RunServer", "pkg/server.go")
	mainFn := findEntity(t, e, "main", "main.go")
	assert.Equal(t, model.TypeMethod, handle.EntityType)

	// FormatOutput is called across packages through a selector.
	callers, err := e.ReverseEdges(ctx, format.Key)
	require.NoError(t, err)
	assert.Contains(t, fromKeys(callers.Edges), handle.Key)
	assert.Contains(t, fromKeys(callers.Edges), findEntity(t, e, "Handler", "main.go").Key)

	fwd, err := e.ForwardEdges(ctx, run.Key)
	require.NoError(t, err)
	assert.Contains(t, toKeys(fwd.Edges), handle.Key)

	blast, err := e.BlastRadius(ctx, mainFn.Key, graph.BlastOptions{Hops: 3, Direction: graph.Forward})
	require.NoError(t, err)
	assert.Contains(t, blast.Reachable(), format.Key)

	// The reverse walk from FormatOutput climbs back to main.
	back, err := e.BlastRadius(ctx, format.Key, graph.BlastOptions{Hops: 3, Direction: graph.Reverse})
	require.NoError(t, err)
	assert.Contains(t, back.Reachable(), mainFn.Key)

	// A second ingest of the untouched tree changes nothing.
	again, err := e.Ingest(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.FilesProcessed)
	assert.Equal(t, summary.FilesProcessed, again.FilesUnchanged)
}

const utilsWithoutFormat = `package main

// Add returns the sum of two integers.
func Add(a, b int) int {
	return a + b
}
`

func TestFixtureIncrementalEdit(t *testing.T) {
	fx := testutil.LoadIncremental(t, "go")

	e, err := Open(fx.Root, nil, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	_, err = e.Ingest(ctx)
	require.NoError(t, err)

	greet := findEntity(t, e, "Greet", "main.go")
	format := findEntity(t, e, "formatGreeting", "utils.go")

	fwd, err := e.ForwardEdges(ctx, greet.Key)
	require.NoError(t, err)
	assert.Contains(t, toKeys(fwd.Edges), format.Key)

	res, err := e.ReindexFile(ctx, "utils.go", []byte(utilsWithoutFormat))
	require.NoError(t, err)
	assert.Equal(t, incremental.OutcomeIndexed, res.Outcome)

	_, err = e.GetEntity(ctx, format.Key)
	assert.Error(t, err)

	// With the definition gone the call falls back to its external target.
	fwd, err = e.ForwardEdges(ctx, greet.Key)
	require.NoError(t, err)
	assert.NotContains(t, toKeys(fwd.Edges), format.Key)
	assert.Contains(t, toKeys(fwd.Edges), "go:fn:formatGreeting:unknown:0-0")
}
