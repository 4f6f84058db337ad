package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_checkins_total",
		Help: "Identify-and-record outcomes by result.",
	}, []string{"outcome"})

	saveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_day_save_failures_total",
		Help: "Failed day-file writes; in-memory state is retained.",
	})

	rollovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_day_rollovers_total",
		Help: "Day rollovers detected while the session was live.",
	})
)
