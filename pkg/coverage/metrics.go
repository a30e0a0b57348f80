package coverage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricResourcesTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagecov",
			Subsystem: "coverage",
			Name:      "resources_tracked_total",
			Help:      "Resources whose source was fetched and registered, by kind.",
		},
		[]string{"kind"},
	)

	metricFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagecov",
			Subsystem: "coverage",
			Name:      "fetch_failures_total",
			Help:      "Swallowed source/text retrieval failures, by kind.",
		},
		[]string{"kind"},
	)

	metricEntriesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagecov",
			Subsystem: "coverage",
			Name:      "entries_emitted_total",
			Help:      "Coverage entries returned by stop calls, by kind.",
		},
		[]string{"kind"},
	)

	metricActiveCollections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pagecov",
			Subsystem: "coverage",
			Name:      "collections_active",
			Help:      "Whether a collection is currently active, by kind.",
		},
		[]string{"kind"},
	)
)
