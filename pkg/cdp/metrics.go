package cdp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommandsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagecov",
			Subsystem: "cdp",
			Name:      "commands_sent_total",
			Help:      "Total protocol commands issued, by method.",
		},
		[]string{"method"},
	)

	metricEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagecov",
			Subsystem: "cdp",
			Name:      "events_received_total",
			Help:      "Total protocol events received, by method.",
		},
		[]string{"method"},
	)
)
