// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Verdicts counts final verdicts per artifact kind.
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeupload_verdicts_total",
			Help: "Number of moderation verdicts by artifact kind and verdict",
		},
		[]string{"kind", "verdict"},
	)

	// AnalyzerFailures counts image analyses resolved by the failure policy.
	AnalyzerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeupload_analyzer_failures_total",
			Help: "Number of image analyzer calls that failed and used the default verdict",
		},
	)

	// FramesClassified counts video frames sent to the image classifier.
	FramesClassified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safeupload_frames_classified_total",
			Help: "Number of sampled video frames classified",
		},
	)

	// AssessDuration observes per-artifact assessment latency.
	AssessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safeupload_assess_duration_seconds",
			Help:    "Time spent assessing one artifact",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
