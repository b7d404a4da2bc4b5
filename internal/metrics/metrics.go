// Package metrics defines the Prometheus collectors shared by the client
// core and the development server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamConnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classreserve_stream_connects_total",
			Help: "Successful event channel connections, including reconnects",
		},
	)

	StreamEventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classreserve_stream_events_received_total",
			Help: "Normalized reservation events delivered to the handler",
		},
	)

	StreamEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classreserve_stream_events_dropped_total",
			Help: "Wire frames dropped as unrecognized or malformed",
		},
	)

	StaleEventsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classreserve_stale_events_rejected_total",
			Help: "Events rejected by the per-slot sequence guard",
		},
	)

	ActiveIntents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classreserve_active_intents",
			Help: "Locally tracked reservation intents",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classreserve_http_requests_total",
			Help: "HTTP requests served by the development server",
		},
		[]string{"method", "path", "status"},
	)

	EventsBroadcastTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classreserve_events_broadcast_total",
			Help: "Reservation events broadcast by the development server",
		},
	)
)
