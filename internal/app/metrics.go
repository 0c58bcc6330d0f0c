package app

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "organiflow_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "status"})

	sideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "organiflow_side_effects_total",
		Help: "Post-commit side effects (audit, snapshot) by result.",
	}, []string{"effect", "result"})
)

func observeSideEffect(effect string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sideEffectsTotal.WithLabelValues(effect, result).Inc()
}

func observeRequest(route string, status int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
