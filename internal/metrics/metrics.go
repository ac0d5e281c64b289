// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var phases = []string{"waiting", "started", "completed"}

var (
	quizPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quiz_phase",
			Help: "1 for the current quiz phase, 0 otherwise",
		},
		[]string{"phase"},
	)

	quizTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_transitions_total",
			Help: "Quiz state transitions by target phase",
		},
		[]string{"phase"},
	)

	answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Answer submissions by outcome (stored, unchanged, rejected)",
		},
		[]string{"outcome"},
	)

	results = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_results_finalized_total",
			Help: "Results scored and ranked",
		},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Live realtime channels",
		},
	)

	realtimeBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Snapshots fanned out to realtime channels",
		},
	)

	realtimeEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_evictions_total",
			Help: "Realtime channels closed by the server, by reason",
		},
		[]string{"reason"},
	)
)

// ObservePhase records a transition into phase.
func ObservePhase(phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		quizPhase.WithLabelValues(p).Set(v)
	}
	quizTransitions.WithLabelValues(phase).Inc()
}

func ObserveAnswer(outcome string) { answers.WithLabelValues(outcome).Inc() }

func ObserveResult() { results.Inc() }

func ConnectionOpened() { realtimeConnections.Inc() }

func ConnectionClosed() { realtimeConnections.Dec() }

func ObserveBroadcast() { realtimeBroadcasts.Inc() }

func ObserveEviction(reason string) { realtimeEvictions.WithLabelValues(reason).Inc() }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
