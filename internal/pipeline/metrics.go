package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts processed turns by final status.
	// Labels: status (ok, extraction_unavailable, conflict, error)
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Total number of processed conversation turns by status",
		},
		[]string{"status"},
	)

	// TurnDuration tracks end-to-end turn processing time.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "turn_duration_seconds",
			Help:      "Duration of turn processing in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OutcomesTotal counts reconciliation outcomes.
	// Labels: outcome (inserted, reinforced, overridden, rejected_low_confidence, superseded)
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total number of candidate reconciliation outcomes",
		},
		[]string{"outcome"},
	)

	// CandidatesDropped counts candidates lost to normalization failures.
	CandidatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates dropped because normalization failed",
		},
	)

	// ExtractRetries counts transient extraction failures that were retried.
	ExtractRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "extract_retries_total",
			Help:      "Total number of extraction attempts retried after transient failure",
		},
	)

	// SaveRetries counts save attempts retried after a version conflict.
	SaveRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "save_retries_total",
			Help:      "Total number of profile saves retried after a version conflict",
		},
	)

	// TokensTotal accumulates provider token usage.
	// Labels: direction (input, output)
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prefd",
			Subsystem: "pipeline",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed by extraction",
		},
		[]string{"direction"},
	)
)
