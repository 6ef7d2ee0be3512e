package assembly

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assemblyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repoboot_assembly_duration_seconds",
			Help:    "Time from Assemble call to its terminal phase",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 600},
		},
		[]string{"outcome"},
	)

	assemblyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoboot_assembly_total",
			Help: "Assemble calls by terminal phase",
		},
		[]string{"outcome"}, // Assembled, TimedOut or Failed
	)
)
