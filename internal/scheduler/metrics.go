package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	firesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmd_fires_total",
		Help: "Occurrences forwarded to the trigger controller by kind and producer",
	}, []string{"kind", "source"})

	fireDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_fire_duplicates_total",
		Help: "Fires suppressed because the occurrence was already consumed or an episode is active",
	})

	staleDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_stale_deliveries_total",
		Help: "Deliveries whose registration was cancelled or replaced",
	})

	missedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_missed_total",
		Help: "Occurrences discovered later than the late fire window",
	})

	scheduleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_schedule_failures_total",
		Help: "NotificationPort registration failures",
	})
)
