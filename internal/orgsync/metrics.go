package orgsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gesturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "organiflow",
		Name:      "gestures_total",
		Help:      "Drag gestures processed, by move policy and outcome.",
	}, []string{"policy", "outcome"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "organiflow",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time spent pushing a gesture to the remote API.",
		Buckets: []float64{
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5, 10,
		},
	}, []string{"mode", "result"})
)

func observeGesture(policy, outcome string) {
	gesturesTotal.WithLabelValues(policy, outcome).Inc()
}
