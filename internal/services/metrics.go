package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duochat",
			Subsystem: "proxy",
			Name:      "completions_total",
			Help:      "Chat completions by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "duochat",
			Subsystem: "proxy",
			Name:      "backend_duration_seconds",
			Help:      "Latency of upstream inference calls",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend", "operation"},
	)

	titleGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duochat",
			Subsystem: "titles",
			Name:      "generations_total",
			Help:      "Title generations by outcome (generated, fallback, failed)",
		},
		[]string{"outcome"},
	)

	hubEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "duochat",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber was not keeping up",
		},
	)
)

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
