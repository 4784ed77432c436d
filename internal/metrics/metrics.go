// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meterline_ingest_total",
		Help: "Total number of ingestion attempts, labelled by outcome.",
	}, []string{"outcome"})

	RaceLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meterline_ingest_race_lost_total",
		Help: "Total number of attempts that lost the identity registration race.",
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meterline_ingest_duration_seconds",
		Help:    "End-to-end latency of a single ingestion attempt.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

// ObserveIngest records one ingestion attempt.
func ObserveIngest(outcome string, elapsed time.Duration) {
	IngestTotal.WithLabelValues(outcome).Inc()
	IngestDuration.Observe(elapsed.Seconds())
}
