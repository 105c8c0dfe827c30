package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"isg/internal/extract"
	"isg/internal/query"
	"isg/internal/slogutil"
	"isg/internal/version"
	"isg/internal/watcher"
)

var (
	_ watcher.Indexer      = (*query.Engine)(nil)
	_ watcher.TrackedFiles = (*query.Engine)(nil)
)

var watchSkipIngest bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the graph current as files change",
	Long: `Ingest the tree, then watch it and reindex every changed file after a
short debounce. Deleted and renamed files are dropped from the graph.

When metrics.addr is set in .isg/config.toml, Prometheus metrics are served
on /metrics at that address.

Examples:
  isg watch
  isg watch --skip-ingest
  ISG_METRICS_ADDR=localhost:9464 isg watch`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchSkipIngest, "skip-ingest", false, "Start watching without an initial ingest")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()
	logger := s.logger(slogutil.SubsystemWatcher)

	engine, err := s.openEngine(false)
	if err != nil {
		exitWithError(err)
	}
	defer engine.Close()

	ctx, cancel := newContext()
	defer cancel()

	if !watchSkipIngest {
		summary, err := engine.Ingest(ctx)
		if err != nil {
			exitWithError(err)
		}
		printResponse(summary)
	}

	cfg := watcher.Config{
		Debounce:       time.Duration(s.config.Watch.DebounceMs) * time.Millisecond,
		MaxPerSecond:   s.config.Watch.MaxReindexPerSecond,
		IgnorePatterns: s.config.IgnorePatterns,
		Languages:      extract.NewLanguageSet(s.config.Languages),
		Tracked:        engine,
	}
	w, err := watcher.New(s.repoRoot, cfg, watcher.ReindexHandler(s.repoRoot, engine, logger), logger)
	if err != nil {
		exitWithError(err)
	}
	if err := w.Start(ctx); err != nil {
		exitWithError(err)
	}

	var srv *http.Server
	if addr := s.config.Metrics.Addr; addr != "" {
		srv = serveMetrics(addr, logger)
		fmt.Printf("Metrics on http://%s/metrics\n", addr)
	}

	logger.Info("Watcher started", "root", s.repoRoot, "version", version.Info())
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", s.repoRoot)
	<-ctx.Done()
	fmt.Println("\nStopping watch...")

	if err := w.Stop(); err != nil {
		logger.Warn("Failed to stop watcher", "error", err.Error())
	}
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics server", "error", err.Error())
		}
	}

	stats := w.Stats()
	logger.Info("Watcher stopped",
		"events", stats.EventsReceived,
		"ignored", stats.EventsIgnored,
		"reindexed", stats.ReindexTriggered,
		"errors", stats.Errors,
	)
}

// serveMetrics exposes the default Prometheus registry in the background.
func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err.Error())
		}
	}()
	return srv
}
