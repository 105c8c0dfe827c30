package graph

// Token estimates approximate the serialized size of a result for callers
// that budget context. They are heuristics, not exact counts.

// CycleTokens estimates a cycle report.
func CycleTokens(count, pathNodes int) int {
	return 60 + 20*count + 15*pathNodes
}

// ClusterTokens estimates a cluster report; keyBytes is the summed length
// of all member keys.
func ClusterTokens(count, keyBytes int) int {
	return 80 + 30*count + keyBytes/4
}

// BlastTokens estimates a blast radius result.
func BlastTokens(total int, focus string) int {
	return 80 + 30*total + len(focus)
}

// ListTokens estimates an entity listing or search result.
func ListTokens(count int, query string) int {
	return 60 + 20*count + len(query)
}

// EdgeTokens estimates an edge listing.
func EdgeTokens(count int) int {
	return 40 + 25*count
}

// CouplingTokens estimates a coupling ranking. SCC, k-core and centrality
// reports are per-entity rankings of similar shape and use it as well.
func CouplingTokens(count int) int {
	return 60 + 25*count
}

// FolderTokens estimates a folder structure listing.
func FolderTokens(count int) int {
	return 100 + 30*count
}
