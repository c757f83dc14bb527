// Package metrics exposes the coordinator's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OnlineNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "iris",
		Name:      "online_nodes",
		Help:      "Number of workers currently considered online.",
	})

	InFlightTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "iris",
		Name:      "inflight_tasks",
		Help:      "Number of tasks that have not yet reached a terminal status.",
	})

	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iris",
		Name:      "tasks_total",
		Help:      "Tasks that reached a terminal status, by status.",
	}, []string{"status", "difficulty", "mode"})

	SubtaskAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iris",
		Name:      "subtask_attempts_total",
		Help:      "Subtask dispatch attempts, by outcome.",
	}, []string{"outcome"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "iris",
		Name:      "dispatch_latency_seconds",
		Help:      "Time from subtask dispatch to a terminal subtask outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	ClassifierFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "iris",
		Name:      "classifier_fallback_total",
		Help:      "Times the local heuristic classifier ran because the external classifier failed.",
	})
)
