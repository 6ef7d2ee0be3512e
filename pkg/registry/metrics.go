package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repoboot_registry_events_total",
			Help: "Registry change events delivered to subscribers",
		},
		[]string{"kind"}, // added or removed
	)

	componentsRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repoboot_registry_components",
			Help: "Components currently registered, by component type",
		},
		[]string{"type"},
	)

	listenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repoboot_registry_listener_panics_total",
			Help: "Listener panics recovered by the event dispatcher",
		},
	)
)
