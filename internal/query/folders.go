package query

import (
	"context"
	"sort"

	"isg/internal/graph"
	"isg/internal/model"
	"isg/internal/paths"
)

// DefaultFolderDepth groups the folder listing by top-level directory.
const DefaultFolderDepth = 1

// FolderNode is one indexed directory at the requested depth. Children are
// the distinct directories one level further down that hold indexed files.
type FolderNode struct {
	Path     string   `json:"path" yaml:"path"`
	Children []string `json:"children,omitempty" yaml:"children,omitempty"`
	Files    int      `json:"files" yaml:"files"`
	Entities int      `json:"entities" yaml:"entities"`
	Tests    int      `json:"tests" yaml:"tests"`
	// Language is the language with the most entities, ties broken by name.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// FolderReport lists indexed folders in path order.
type FolderReport struct {
	Depth         int          `json:"depth" yaml:"depth"`
	Folders       []FolderNode `json:"folders" yaml:"folders"`
	TokenEstimate int          `json:"tokenEstimate" yaml:"tokenEstimate"`
}

type folderAcc struct {
	node      FolderNode
	children  map[string]bool
	languages map[string]int
}

// Folders groups the stored files and entities by directory. Depth below 1
// uses DefaultFolderDepth.
func (e *Engine) Folders(ctx context.Context, depth int) (*FolderReport, error) {
	if depth < 1 {
		depth = DefaultFolderDepth
	}
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	acc := make(map[string]*folderAcc)
	get := func(file string) *folderAcc {
		p := paths.FolderAt(file, depth)
		a, ok := acc[p]
		if !ok {
			a = &folderAcc{
				node:      FolderNode{Path: p},
				children:  make(map[string]bool),
				languages: make(map[string]int),
			}
			acc[p] = a
		}
		return a
	}

	for _, f := range snap.Files {
		a := get(f.FilePath)
		a.node.Files++
		if child := paths.FolderAt(f.FilePath, depth+1); child != a.node.Path {
			a.children[child] = true
		}
	}
	for _, ent := range snap.Entities {
		a := get(ent.FilePath)
		a.node.Entities++
		if ent.Class == model.ClassTest {
			a.node.Tests++
		}
		if ent.Language != "" {
			a.languages[ent.Language]++
		}
	}

	report := &FolderReport{Depth: depth, Folders: make([]FolderNode, 0, len(acc))}
	for _, a := range acc {
		n := a.node
		for c := range a.children {
			n.Children = append(n.Children, c)
		}
		sort.Strings(n.Children)
		n.Language = dominant(a.languages)
		report.Folders = append(report.Folders, n)
	}
	sort.Slice(report.Folders, func(i, j int) bool { return report.Folders[i].Path < report.Folders[j].Path })
	report.TokenEstimate = graph.FolderTokens(len(report.Folders))
	return report, nil
}

func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for lang, n := range counts {
		if n > bestN || (n == bestN && lang < best) {
			best, bestN = lang, n
		}
	}
	return best
}
