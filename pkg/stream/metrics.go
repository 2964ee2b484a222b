package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "stream_connects_total",
		Help:      "Successful realtime connection establishments.",
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "stream_reconnect_attempts_total",
		Help:      "Scheduled reconnection attempts after abnormal closes.",
	})

	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "stream_frames_total",
		Help:      "Inbound realtime frames by routed type.",
	}, []string{"type"})

	metricDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "stream_dropped_frames_total",
		Help:      "Inbound frames dropped as malformed or out of protocol.",
	})

	metricDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartscript",
		Name:      "stream_dropped_events_total",
		Help:      "Events dropped because the consumer channel was full.",
	})
)
