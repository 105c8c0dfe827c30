package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"isg/internal/export"
	"isg/internal/graph"
	"isg/internal/incremental"
	"isg/internal/model"
	"isg/internal/query"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// printResponse formats resp with the global --format flag and prints it,
// exiting on error.
func printResponse(resp interface{}) {
	output, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatYAML(resp interface{}) (string, error) {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// formatHuman renders the known result types as text. Anything else falls
// back to JSON.
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *incremental.Summary:
		return formatSummaryHuman(v), nil
	case *incremental.ReindexStats:
		return formatReindexHuman(v), nil
	case *query.EntityList:
		return formatEntityListHuman(v), nil
	case *query.EntityResult:
		return formatEntityHuman(v), nil
	case *query.EdgeList:
		return formatEdgeListHuman(v), nil
	case *query.EdgePage:
		return formatEdgePageHuman(v), nil
	case *query.Stats:
		return formatStatsHuman(v), nil
	case *query.FolderReport:
		return formatFoldersHuman(v), nil
	case *graph.BlastResult:
		return formatBlastHuman(v), nil
	case *graph.CycleReport:
		return formatCyclesHuman(v), nil
	case *graph.CouplingReport:
		return formatCouplingHuman(v), nil
	case *graph.ClusterReport:
		return formatClustersHuman(v), nil
	case *graph.SCCReport:
		return formatSCCHuman(v), nil
	case *graph.KCoreReport:
		return formatKCoreHuman(v), nil
	case *graph.CentralityReport:
		return formatCentralityHuman(v), nil
	case *export.Stats:
		return formatExportHuman(v), nil
	default:
		return formatJSON(resp)
	}
}

func formatSummaryHuman(s *incremental.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Ingested %s (run %s)\n", s.Root, s.RunID))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("  Files seen:       %d\n", s.FilesSeen))
	b.WriteString(fmt.Sprintf("  Files processed:  %d\n", s.FilesProcessed))
	b.WriteString(fmt.Sprintf("  Files unchanged:  %d\n", s.FilesUnchanged))
	b.WriteString(fmt.Sprintf("  Files skipped:    %d\n", s.FilesSkipped))
	b.WriteString(fmt.Sprintf("  Files failed:     %d\n", s.FilesFailed))
	b.WriteString(fmt.Sprintf("  Files removed:    %d\n", s.FilesRemoved))
	b.WriteString(fmt.Sprintf("  Entities created: %d\n", s.EntitiesCreated))
	b.WriteString(fmt.Sprintf("  Edges created:    %d\n", s.EdgesCreated))
	b.WriteString(fmt.Sprintf("  Duration:         %s\n", s.Duration))
	if len(s.SkipReasons) > 0 {
		b.WriteString("\nSkip reasons:\n")
		for _, reason := range sortedKeys(s.SkipReasons) {
			b.WriteString(fmt.Sprintf("  %-16s %d\n", reason, s.SkipReasons[reason]))
		}
	}
	if len(s.Coverage) > 0 {
		b.WriteString("\nCoverage by folder:\n")
		for _, c := range s.Coverage {
			b.WriteString(fmt.Sprintf("  %-32s %4d/%-4d parsed %6.1f%%", c.Folder, c.Parsed, c.Eligible, c.CoveragePct))
			if c.Failed > 0 {
				b.WriteString(fmt.Sprintf("  %d failed", c.Failed))
			}
			b.WriteString("\n")
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString(fmt.Sprintf("\nWarnings (%d):\n", len(s.Warnings)+s.WarningsDropped))
		for _, w := range s.Warnings {
			b.WriteString(fmt.Sprintf("  ! %s: %s\n", w.Path, w.Message))
		}
		if s.WarningsDropped > 0 {
			b.WriteString(fmt.Sprintf("  ... and %d more\n", s.WarningsDropped))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFoldersHuman(r *query.FolderReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Folders at depth %d: %d\n", r.Depth, len(r.Folders)))
	for _, f := range r.Folders {
		b.WriteString(fmt.Sprintf("  %-32s %4d files %6d entities", f.Path, f.Files, f.Entities))
		if f.Language != "" {
			b.WriteString("  " + f.Language)
		}
		b.WriteString("\n")
		for _, c := range f.Children {
			b.WriteString("    " + c + "/\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatReindexHuman(s *incremental.ReindexStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s: %s\n", s.Path, s.Outcome))
	if s.SkipReason != "" {
		b.WriteString(fmt.Sprintf("  Skipped: %s\n", s.SkipReason))
	}
	b.WriteString(fmt.Sprintf("  Entities: %d -> %d (+%d -%d)\n", s.EntitiesBefore, s.EntitiesAfter, s.EntitiesAdded, s.EntitiesRemoved))
	b.WriteString(fmt.Sprintf("  Edges:    +%d -%d\n", s.EdgesAdded, s.EdgesRemoved))
	for _, w := range s.Warnings {
		b.WriteString(fmt.Sprintf("  ! %s\n", w.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEntityListHuman(l *query.EntityList) string {
	var b strings.Builder
	if l.Query != "" {
		b.WriteString(fmt.Sprintf("Matches for %q: %d\n", l.Query, l.Total))
	} else {
		b.WriteString(fmt.Sprintf("Entities: %d\n", l.Total))
	}
	for _, e := range l.Entities {
		b.WriteString("  " + entityLine(e) + "\n")
	}
	if shown := l.Offset + len(l.Entities); shown < l.Total {
		b.WriteString(fmt.Sprintf("  ... %d more (use --offset %d)\n", l.Total-shown, shown))
	}
	return strings.TrimRight(b.String(), "\n")
}

func entityLine(e model.Entity) string {
	class := ""
	if e.Class == model.ClassTest {
		class = " [test]"
	}
	return fmt.Sprintf("%-8s %-32s %s:%d-%d%s", e.EntityType, e.Name, e.FilePath, e.StartLine, e.EndLine, class)
}

func formatEntityHuman(r *query.EntityResult) string {
	e := r.Entity
	var b strings.Builder
	b.WriteString(e.Key + "\n")
	b.WriteString(fmt.Sprintf("  Name:     %s\n", e.Name))
	b.WriteString(fmt.Sprintf("  Type:     %s\n", e.EntityType))
	b.WriteString(fmt.Sprintf("  Language: %s\n", e.Language))
	b.WriteString(fmt.Sprintf("  Location: %s:%d-%d\n", e.FilePath, e.StartLine, e.EndLine))
	b.WriteString(fmt.Sprintf("  Class:    %s\n", e.Class))
	b.WriteString(fmt.Sprintf("  Edges:    %d out, %d in", r.Outbound, r.Inbound))
	return b.String()
}

func formatEdgeListHuman(l *query.EdgeList) string {
	var b strings.Builder
	arrow := "->"
	if l.Direction == graph.Reverse {
		arrow = "<-"
	}
	b.WriteString(fmt.Sprintf("%s (%d %s edges)\n", l.Key, len(l.Edges), l.Direction))
	for _, e := range l.Edges {
		other := e.ToKey
		if l.Direction == graph.Reverse {
			other = e.FromKey
		}
		b.WriteString(fmt.Sprintf("  %s %-10s %s\n", arrow, e.EdgeType, other))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEdgePageHuman(p *query.EdgePage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Edges: %d\n", p.Total))
	for _, e := range p.Edges {
		b.WriteString(fmt.Sprintf("  %s -[%s]-> %s\n", e.FromKey, e.EdgeType, e.ToKey))
	}
	if shown := p.Offset + len(p.Edges); shown < p.Total {
		b.WriteString(fmt.Sprintf("  ... %d more (use --offset %d)\n", p.Total-shown, shown))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatsHuman(s *query.Stats) string {
	var b strings.Builder
	b.WriteString("ISG Graph\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("  Database:       %s\n", s.DatabasePath))
	b.WriteString(fmt.Sprintf("  Files:          %d\n", s.Files))
	b.WriteString(fmt.Sprintf("  Entities:       %d\n", s.Entities))
	b.WriteString(fmt.Sprintf("  Edges:          %d (%d external, %d resolved)\n", s.Edges, s.ExternalEdges, s.ResolvedEdges))
	b.WriteString(fmt.Sprintf("  Generation:     %d\n", s.Generation))
	writeCounts(&b, "By language", s.ByLanguage)
	writeCounts(&b, "By entity type", s.ByEntityType)
	writeCounts(&b, "By edge type", s.ByEdgeType)
	return strings.TrimRight(b.String(), "\n")
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	b.WriteString("\n" + title + ":\n")
	for _, k := range sortedKeys(counts) {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", k, counts[k]))
	}
}

func formatBlastHuman(r *graph.BlastResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Blast radius of %s (%s, %d hops): %d entities\n", r.Focus, r.Direction, r.Hops, r.Total))
	for _, layer := range r.Layers {
		b.WriteString(fmt.Sprintf("\nHop %d (%d):\n", layer.Hop, len(layer.Keys)))
		for _, k := range layer.Keys {
			b.WriteString("  " + k + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCyclesHuman(r *graph.CycleReport) string {
	if len(r.Cycles) == 0 {
		return fmt.Sprintf("No cycles found (%d nodes scanned)", r.NodesScanned)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Cycles: %d\n", len(r.Cycles)))
	for i, c := range r.Cycles {
		path := append(append([]string(nil), c.Keys...), c.Keys[0])
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, strings.Join(path, " -> ")))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCouplingHuman(r *graph.CouplingReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Coupling hotspots (%d of %d entities)\n", len(r.Scores), r.Considered))
	b.WriteString(fmt.Sprintf("  %5s %5s %5s  %s\n", "total", "in", "out", "key"))
	for _, s := range r.Scores {
		b.WriteString(fmt.Sprintf("  %5d %5d %5d  %s\n", s.Total, s.Inbound, s.Outbound, s.Key))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatClustersHuman(r *graph.ClusterReport) string {
	var b strings.Builder
	converged := "converged"
	if !r.Converged {
		converged = "iteration cap reached"
	}
	b.WriteString(fmt.Sprintf("Clusters: %d (%d iterations, %s)\n", len(r.Clusters), r.Iterations, converged))
	for _, c := range r.Clusters {
		b.WriteString(fmt.Sprintf("\n#%d size %d (intra %d, inter %d)\n", c.ID, c.Size, c.IntraEdges, c.InterEdges))
		for _, k := range c.Keys {
			b.WriteString("  " + k + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSCCHuman(r *graph.SCCReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Strongly connected components: %d (%d cyclic)\n", r.Total, r.Cyclic))
	for i, c := range r.Components {
		b.WriteString(fmt.Sprintf("\n%d. size %d, risk %s\n", i+1, c.Size, c.Risk))
		for _, k := range c.Keys {
			b.WriteString("  " + k + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatKCoreHuman(r *graph.KCoreReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Max core: %d\n", r.MaxCore))
	for _, e := range r.Entries {
		b.WriteString(fmt.Sprintf("  %3d %-10s %s\n", e.Coreness, e.Layer, e.Key))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCentralityHuman(r *graph.CentralityReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s over %d nodes, %d edges (%d iterations)\n", r.Method, r.TotalNodes, r.TotalEdges, r.Iterations))
	for i, s := range r.Scores {
		b.WriteString(fmt.Sprintf("  %2d. %.6f  %s\n", i+1, s.Score, s.Key))
		if len(s.Path) > 1 {
			b.WriteString("      via " + strings.Join(s.Path, " -> ") + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExportHuman(s *export.Stats) string {
	line := fmt.Sprintf("%d files, %d entities, %d edges in %s", s.Files, s.Entities, s.Edges, s.Duration)
	if s.Pruned > 0 {
		line += fmt.Sprintf(" (%d pruned)", s.Pruned)
	}
	return line
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
