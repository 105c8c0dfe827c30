package main

import (
	"github.com/spf13/cobra"

	"isg/internal/graph"
	"isg/internal/query"
)

var (
	blastHops    int
	blastReverse bool

	hotspotsTop             int
	hotspotsExcludeExternal bool
	hotspotsExcludeTests    bool

	clustersMaxIterations   int
	clustersMinSize         int
	clustersIncludeExternal bool

	sccIncludeTrivial bool

	foldersDepth int

	kcoreTop             int
	kcoreIncludeExternal bool

	centralityMethod          string
	centralitySeeds           []string
	centralityTop             int
	centralityDamping         float64
	centralityPaths           bool
	centralityExcludeExternal bool
)

var blastCmd = &cobra.Command{
	Use:   "blast <key>",
	Short: "Show what a change to an entity can reach",
	Long: `List the entities within N hops of an entity, layer by layer. By default
the walk follows dependencies; --reverse follows dependents instead, which
answers "what breaks if this changes".

Examples:
  isg blast go:fn:parse:internal_p_go:3-9
  isg blast go:fn:parse:internal_p_go:3-9 --reverse --hops=2`,
	Args: cobra.ExactArgs(1),
	Run:  runBlast,
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Find dependency cycles",
	Args:  cobra.NoArgs,
	Run:   runCycles,
}

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "Rank entities by coupling",
	Long: `Rank entities by inbound plus outbound edges.

Examples:
  isg hotspots
  isg hotspots --top=10 --exclude-external --exclude-tests`,
	Args: cobra.NoArgs,
	Run:  runHotspots,
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Group entities into clusters by label propagation",
	Args:  cobra.NoArgs,
	Run:   runClusters,
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Show how indexed files and entities spread over directories",
	Long: `Group the indexed files and entities by their leading directories and list
the subdirectories one level further down.

Examples:
  isg folders
  isg folders --depth=2`,
	Args: cobra.NoArgs,
	Run:  runFolders,
}

var sccCmd = &cobra.Command{
	Use:   "scc",
	Short: "List strongly connected components with a risk level",
	Args:  cobra.NoArgs,
	Run:   runSCC,
}

var kcoreCmd = &cobra.Command{
	Use:   "kcore",
	Short: "Rank entities by k-core decomposition",
	Args:  cobra.NoArgs,
	Run:   runKCore,
}

var centralityCmd = &cobra.Command{
	Use:   "centrality",
	Short: "Rank entities by PageRank or betweenness",
	Long: `Rank entities by centrality. PageRank weights edges by type; with one or
more --seed keys it becomes personalized and ranks what the seeds lead to.

Examples:
  isg centrality
  isg centrality --method=betweenness --top=10
  isg centrality --seed=go:fn:main:cmd_main_go:5-30 --paths`,
	Args: cobra.NoArgs,
	Run:  runCentrality,
}

func init() {
	blastCmd.Flags().IntVar(&blastHops, "hops", 0, "Maximum hops (default: query.defaultHops)")
	blastCmd.Flags().BoolVar(&blastReverse, "reverse", false, "Follow dependents instead of dependencies")

	hotspotsCmd.Flags().IntVar(&hotspotsTop, "top", 20, "Number of entities to return (0 for all)")
	hotspotsCmd.Flags().BoolVar(&hotspotsExcludeExternal, "exclude-external", false, "Leave unresolved external targets out of the ranking")
	hotspotsCmd.Flags().BoolVar(&hotspotsExcludeTests, "exclude-tests", false, "Leave test entities out of the ranking")

	clustersCmd.Flags().IntVar(&clustersMaxIterations, "max-iterations", 0, "Iteration cap (default: query.clusterMaxIterations)")
	clustersCmd.Flags().IntVar(&clustersMinSize, "min-size", 0, "Hide clusters smaller than this")
	clustersCmd.Flags().BoolVar(&clustersIncludeExternal, "include-external", false, "Cluster unresolved external targets too")

	foldersCmd.Flags().IntVar(&foldersDepth, "depth", query.DefaultFolderDepth, "Number of leading directories to group by")

	sccCmd.Flags().BoolVar(&sccIncludeTrivial, "include-trivial", false, "Include single-entity components without a self-loop")

	kcoreCmd.Flags().IntVar(&kcoreTop, "top", 20, "Number of entities to return (0 for all)")
	kcoreCmd.Flags().BoolVar(&kcoreIncludeExternal, "include-external", false, "Include unresolved external targets")

	centralityCmd.Flags().StringVar(&centralityMethod, "method", graph.MethodPageRank, "Method (pagerank, betweenness)")
	centralityCmd.Flags().StringSliceVar(&centralitySeeds, "seed", nil, "Personalize PageRank from these keys (repeatable)")
	centralityCmd.Flags().IntVar(&centralityTop, "top", 20, "Number of entities to return")
	centralityCmd.Flags().Float64Var(&centralityDamping, "damping", 0.85, "PageRank damping factor")
	centralityCmd.Flags().BoolVar(&centralityPaths, "paths", false, "Explain personalized results with a path from a seed")
	centralityCmd.Flags().BoolVar(&centralityExcludeExternal, "exclude-external", false, "Leave unresolved external targets out of the ranking")

	rootCmd.AddCommand(blastCmd)
	rootCmd.AddCommand(cyclesCmd)
	rootCmd.AddCommand(hotspotsCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(sccCmd)
	rootCmd.AddCommand(kcoreCmd)
	rootCmd.AddCommand(centralityCmd)
}

func runBlast(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	opts := graph.BlastOptions{Hops: engine.DefaultHops(), Direction: graph.Forward}
	if cmd.Flags().Changed("hops") {
		opts.Hops = blastHops
	}
	if blastReverse {
		opts.Direction = graph.Reverse
	}
	result, err := engine.BlastRadius(ctx, args[0], opts)
	if err != nil {
		exitWithError(err)
	}
	printResponse(result)
}

func runFolders(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.Folders(ctx, foldersDepth)
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runCycles(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.Cycles(ctx)
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runHotspots(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.Coupling(ctx, graph.CouplingOptions{
		TopN:            hotspotsTop,
		ExcludeExternal: hotspotsExcludeExternal,
		ExcludeTests:    hotspotsExcludeTests,
	})
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runClusters(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.Clusters(ctx, graph.ClusterOptions{
		MaxIterations:   clustersMaxIterations,
		IncludeExternal: clustersIncludeExternal,
		MinSize:         clustersMinSize,
	})
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runSCC(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.SCC(ctx, graph.SCCOptions{IncludeTrivial: sccIncludeTrivial})
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runKCore(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	report, err := engine.KCore(ctx, graph.KCoreOptions{
		TopN:            kcoreTop,
		IncludeExternal: kcoreIncludeExternal,
	})
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}

func runCentrality(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	opts := graph.DefaultCentralityOptions()
	opts.Method = centralityMethod
	opts.Seeds = centralitySeeds
	opts.TopK = centralityTop
	opts.Damping = centralityDamping
	opts.IncludePaths = centralityPaths
	opts.ExcludeExternal = centralityExcludeExternal

	report, err := engine.Centrality(ctx, opts)
	if err != nil {
		exitWithError(err)
	}
	printResponse(report)
}
