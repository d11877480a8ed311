// Package metrics holds the Prometheus collectors of the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visxp_prep_runs_total",
		Help: "Total number of pipeline runs, by result state",
	}, []string{"state"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visxp_prep_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	KeyframesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visxp_prep_keyframes_extracted_total",
		Help: "Total number of keyframe images written across all runs",
	})

	SpectrogramsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visxp_prep_spectrograms_written_total",
		Help: "Total number of spectrograms written, by sample rate",
	}, []string{"sample_rate"})

	KeyframesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visxp_prep_keyframes_skipped_total",
		Help: "Keyframes dropped because their audio window falls outside the clip",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "visxp_prep_active_runs",
		Help: "Number of pipeline runs in progress",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visxp_prep_http_requests_total",
		Help: "Total number of HTTP requests, by method and status code",
	}, []string{"method", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visxp_prep_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
