package trigger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	episodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmd_episodes_total",
		Help: "Ringing episodes by how they ended",
	}, []string{"outcome"})

	audioFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_audio_failures_total",
		Help: "Episodes that rang without audio",
	})
)
