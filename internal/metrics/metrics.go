// Package metrics exports sync pass outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"portal-sync/internal/sync"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_items_total",
			Help: "Items handled by sync passes, by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	passDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_sync_pass_duration_seconds",
			Help:    "Duration of orchestrated sync passes",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s .. ~17m
		},
		[]string{"kind"},
	)

	lastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last sync pass without pass-level errors",
		},
		[]string{"kind"},
	)

	passFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_pass_failures_total",
			Help: "Sync passes that ended with a pass-level error",
		},
		[]string{"kind"},
	)
)

// Recorder implements sync.Recorder on the package collectors.
type Recorder struct{}

var _ sync.Recorder = Recorder{}

func (Recorder) ObserveReport(_ sync.Kind, r sync.Report) {
	entity := string(r.Entity)
	add := func(outcome string, n int) {
		if n > 0 {
			itemsTotal.WithLabelValues(entity, outcome).Add(float64(n))
		}
	}
	add("created", r.Created)
	add("updated", r.Updated)
	add("skipped", r.Skipped)
	add("errored", r.Errored)
}

func (Recorder) ObservePass(s sync.Summary, err error) {
	kind := string(s.Kind)
	passDuration.WithLabelValues(kind).Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	if err != nil {
		passFailures.WithLabelValues(kind).Inc()
		return
	}
	lastSuccess.WithLabelValues(kind).Set(float64(s.FinishedAt.Unix()))
}
