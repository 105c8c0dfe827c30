package incremental

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("isg.incremental")

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// reindexTotal counts file transitions by operation and outcome
	reindexTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isg_reindex_total",
		Help: "Total file transitions by operation and outcome",
	}, []string{"operation", "outcome"})

	// reindexDuration tracks transition latency
	reindexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isg_reindex_duration_seconds",
		Help:    "File transition duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// reindexEntityChurn tracks entities added plus removed per transition
	reindexEntityChurn = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "isg_reindex_entity_churn",
		Help:    "Entities added plus removed per file transition",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
	})

	// ingestFilesTotal counts files visited by bulk ingestion by result
	ingestFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "isg_ingest_files_total",
		Help: "Files visited by bulk ingestion by result",
	}, []string{"result"})
)

func startTransitionSpan(ctx context.Context, operation, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Reindexer."+operation,
		trace.WithAttributes(
			attribute.String("isg.path", path),
		),
	)
}

func finishTransition(span trace.Span, operation string, stats *ReindexStats, err error) {
	reindexTotal.WithLabelValues(operation, string(stats.Outcome)).Inc()
	reindexDuration.WithLabelValues(operation).Observe(stats.Duration.Seconds())
	if stats.Outcome == OutcomeIndexed || stats.Outcome == OutcomeRemoved {
		reindexEntityChurn.Observe(float64(stats.EntitiesAdded + stats.EntitiesRemoved))
	}

	span.SetAttributes(
		attribute.String("isg.outcome", string(stats.Outcome)),
		attribute.Int("isg.entities_added", stats.EntitiesAdded),
		attribute.Int("isg.entities_removed", stats.EntitiesRemoved),
		attribute.Int("isg.edges_added", stats.EdgesAdded),
		attribute.Int("isg.edges_removed", stats.EdgesRemoved),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recordIngestFile(result string) {
	ingestFilesTotal.WithLabelValues(result).Inc()
}
