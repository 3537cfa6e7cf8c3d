package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_classifications_total",
			Help: "Total number of intent classifications by chosen capability.",
		},
		[]string{"capability"},
	)
	classifierFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_classifier_fallbacks_total",
			Help: "Total number of classifications resolved by the keyword fallback.",
		},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_guard_rejections_total",
			Help: "Total number of guard rejections by violation kind.",
		},
		[]string{"violation"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_llm_call_duration_seconds",
			Help:    "LLM backend call latency by outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_query_duration_seconds",
			Help:    "Read-only query execution latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_query_rows_returned",
			Help:    "Rows returned per executed query, after the row cap.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
	schemaRefreshFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_schema_refresh_failures_total",
			Help: "Total number of schema refresh attempts that kept the last-known-good snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		classificationsTotal,
		classifierFallbacksTotal,
		guardRejectionsTotal,
		llmCallDurationSeconds,
		queryDurationSeconds,
		queryRowsReturned,
		schemaRefreshFailuresTotal,
	)
}

func ObserveClassification(capability string, fallback bool) {
	classificationsTotal.WithLabelValues(capability).Inc()
	if fallback {
		classifierFallbacksTotal.Inc()
	}
}

func ObserveGuardRejection(violation string) {
	guardRejectionsTotal.WithLabelValues(violation).Inc()
}

func ObserveLLMCall(outcome string, elapsed time.Duration) {
	llmCallDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func ObserveQuery(elapsed time.Duration, rows int) {
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRowsReturned.Observe(float64(rows))
}

func IncrementSchemaRefreshFailure() {
	schemaRefreshFailuresTotal.Inc()
}
