// Package metrics exposes Prometheus counters and histograms for
// stage latency, provider call outcomes, job counts, and event-store
// writes. The teacher's go.mod declares prometheus/client_golang but
// no teacher source file ever imports it; this package gives it its
// first real home, following the package-level promauto.New* idiom
// used throughout the prometheus client ecosystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "council_stage_duration_seconds",
		Help:    "Duration of each pipeline stage, in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ProviderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_provider_calls_total",
		Help: "Total LLM provider calls, by provider and outcome status.",
	}, []string{"provider", "status"})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_jobs_total",
		Help: "Total jobs processed, by terminal status.",
	}, []string{"status"})

	EventsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_events_appended_total",
		Help: "Total events appended to the event store, by event type.",
	}, []string{"event_type"})
)
