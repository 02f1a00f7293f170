// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assethub_jobs_total",
			Help: "Ingestion jobs by terminal status (done, failed, skipped)",
		},
		[]string{"status"},
	)

	JobWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assethub_job_warnings_total",
			Help: "Non-fatal job warnings by kind",
		},
		[]string{"kind"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assethub_stage_duration_seconds",
			Help:    "Duration of each ingestion stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	EncodedBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assethub_encoded_bytes",
			Help:    "Size of encoded assets",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
		},
	)

	BudgetMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assethub_budget_misses_total",
			Help: "Encodings returned over budget at the minimum width",
		},
	)

	BytesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assethub_bytes_saved_total",
			Help: "Source bytes minus encoded bytes over all jobs",
		},
	)

	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assethub_webhook_requests_total",
			Help: "Webhook requests by outcome",
		},
		[]string{"outcome"},
	)

	LinkerCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assethub_linker_cache_total",
			Help: "Record id cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assethub_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assethub_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)
)
