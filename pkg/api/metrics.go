package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "api_requests_total",
		Help:      "API requests by method and outcome.",
	}, []string{"method", "outcome"})

	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartscript",
		Name:      "api_request_duration_seconds",
		Help:      "API request latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)
