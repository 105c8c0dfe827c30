package main

import (
	"github.com/spf13/cobra"

	"isg/internal/model"
	"isg/internal/storage"
)

var (
	entitiesLang   string
	entitiesType   string
	entitiesClass  string
	entitiesFile   string
	entitiesOffset int
	entitiesLimit  int

	searchOffset int
	searchLimit  int

	edgesReverse bool
	edgesAll     bool
	edgesOffset  int
	edgesLimit   int
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entities",
	Long: `List entities ordered by key, optionally filtered.

Examples:
  isg entities
  isg entities --lang=go --type=fn
  isg entities --class=test --file=internal/api/handler_test.go
  isg entities --offset=100 --limit=50`,
	Args: cobra.NoArgs,
	Run:  runEntities,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entities by name",
	Long: `Search entities whose name contains the query, case-insensitive.

Examples:
  isg search handleRequest
  isg search parse --limit=10`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

var entityCmd = &cobra.Command{
	Use:   "entity <key>",
	Short: "Show one entity",
	Long: `Show an entity by key with its edge counts.

Examples:
  isg entity go:fn:main:cmd_server_main_go:12-40`,
	Args: cobra.ExactArgs(1),
	Run:  runEntity,
}

var edgesCmd = &cobra.Command{
	Use:   "edges [key]",
	Short: "Show the edges of an entity",
	Long: `Show what an entity depends on, or with --reverse what depends on it.
Cross-file calls resolved by name are included. With --all, page through
every stored edge instead.

Examples:
  isg edges go:fn:main:cmd_server_main_go:12-40
  isg edges go:fn:parse:internal_p_go:3-9 --reverse
  isg edges --all --limit=200`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEdges,
}

func init() {
	entitiesCmd.Flags().StringVar(&entitiesLang, "lang", "", "Filter by language")
	entitiesCmd.Flags().StringVar(&entitiesType, "type", "", "Filter by entity type (fn, method, struct, ...)")
	entitiesCmd.Flags().StringVar(&entitiesClass, "class", "", "Filter by class (code, test)")
	entitiesCmd.Flags().StringVar(&entitiesFile, "file", "", "Filter by repo-relative file path")
	entitiesCmd.Flags().IntVar(&entitiesOffset, "offset", 0, "Number of entities to skip")
	entitiesCmd.Flags().IntVar(&entitiesLimit, "limit", 0, "Page size (default: query.defaultPageSize)")

	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Number of matches to skip")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Page size (default: query.defaultPageSize)")

	edgesCmd.Flags().BoolVar(&edgesReverse, "reverse", false, "Show dependents instead of dependencies")
	edgesCmd.Flags().BoolVar(&edgesAll, "all", false, "Page through every stored edge")
	edgesCmd.Flags().IntVar(&edgesOffset, "offset", 0, "Number of edges to skip (with --all)")
	edgesCmd.Flags().IntVar(&edgesLimit, "limit", 0, "Page size (with --all)")

	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(edgesCmd)
}

func runEntities(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	class, err := parseClass(entitiesClass)
	if err != nil {
		exitWithError(err)
	}
	list, err := engine.ListEntities(ctx, storage.EntityFilter{
		Language:   entitiesLang,
		EntityType: entitiesType,
		Class:      class,
		FilePath:   entitiesFile,
		Page:       storage.Page{Offset: entitiesOffset, Limit: entitiesLimit},
	})
	if err != nil {
		exitWithError(err)
	}
	printResponse(list)
}

func runSearch(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	list, err := engine.SearchEntities(ctx, args[0], storage.Page{Offset: searchOffset, Limit: searchLimit})
	if err != nil {
		exitWithError(err)
	}
	printResponse(list)
}

func runEntity(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	result, err := engine.GetEntity(ctx, args[0])
	if err != nil {
		exitWithError(err)
	}
	printResponse(result)
}

func runEdges(cmd *cobra.Command, args []string) {
	if !edgesAll && len(args) != 1 {
		exitWithError(invalidArgument("edges needs an entity key, or --all"))
	}
	s := mustSession()
	defer s.close()
	engine := mustEngine(s)
	defer engine.Close()
	ctx, cancel := newContext()
	defer cancel()

	if edgesAll {
		page, err := engine.ListEdges(ctx, storage.Page{Offset: edgesOffset, Limit: edgesLimit})
		if err != nil {
			exitWithError(err)
		}
		printResponse(page)
		return
	}

	get := engine.ForwardEdges
	if edgesReverse {
		get = engine.ReverseEdges
	}
	list, err := get(ctx, args[0])
	if err != nil {
		exitWithError(err)
	}
	printResponse(list)
}

// parseClass maps a --class value onto an entity class.
func parseClass(s string) (model.EntityClass, error) {
	switch s {
	case "":
		return "", nil
	case "code", "CODE":
		return model.ClassCode, nil
	case "test", "TEST":
		return model.ClassTest, nil
	default:
		return "", invalidArgument("unknown class %q (want code or test)", s)
	}
}
