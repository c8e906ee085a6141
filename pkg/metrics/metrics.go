// Package metrics exposes the simulator's prometheus instrumentation. One
// Registry is shared by the engine, the network manager and the mesh; it is
// self-contained so tests can create isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the simulator
type Registry struct {
	// Network delivery pipeline
	MessagesSent      prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessagesDropped   *prometheus.CounterVec // reason: loss | shutdown
	DeliveryErrors    prometheus.Counter
	MessageQueueDepth prometheus.Gauge
	DeliveryDelay     prometheus.Histogram

	// Simulation engine
	EventsScheduled prometheus.Counter
	EventsProcessed prometheus.Counter
	EventErrors     prometheus.Counter
	SimulationSteps prometheus.Counter
	EventQueueDepth prometheus.Gauge

	// Mesh topology
	MeshDevices     prometheus.Gauge
	MeshReachable   prometheus.Gauge
	MeshUnreachable prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all simulator metrics registered
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.MessagesSent = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_messages_sent_total",
			Help: "Messages accepted into the delivery queue",
		},
	)
	r.MessagesReceived = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_messages_received_total",
			Help: "Messages successfully delivered to a device",
		},
	)
	r.MessagesDropped = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "iotsim_messages_dropped_total",
			Help: "Messages dropped before delivery",
		},
		[]string{"reason"},
	)
	r.DeliveryErrors = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_delivery_errors_total",
			Help: "Failed delivery attempts",
		},
	)
	r.MessageQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_message_queue_depth",
			Help: "Messages waiting in the delivery queue",
		},
	)
	r.DeliveryDelay = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "iotsim_delivery_delay_seconds",
			Help:    "Simulated network delay applied before delivery",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	r.EventsScheduled = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_events_scheduled_total",
			Help: "Simulation events pushed onto the event queue",
		},
	)
	r.EventsProcessed = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_events_processed_total",
			Help: "Simulation event callbacks executed",
		},
	)
	r.EventErrors = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_event_errors_total",
			Help: "Event callbacks that panicked",
		},
	)
	r.SimulationSteps = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "iotsim_simulation_steps_total",
			Help: "Scheduler loop iterations in the RUNNING state",
		},
	)
	r.EventQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_event_queue_depth",
			Help: "Events waiting in the scheduler queue",
		},
	)

	r.MeshDevices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_mesh_devices",
			Help: "Devices in the mesh topology",
		},
	)
	r.MeshReachable = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_mesh_reachable_devices",
			Help: "Devices with a route to the gateway",
		},
	)
	r.MeshUnreachable = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "iotsim_mesh_unreachable_devices",
			Help: "Devices without a route to the gateway",
		},
	)

	return r
}

// UpdateMeshMetrics sets the topology gauges from a reachability summary
func (r *Registry) UpdateMeshMetrics(total, reachable, unreachable int) {
	r.MeshDevices.Set(float64(total))
	r.MeshReachable.Set(float64(reachable))
	r.MeshUnreachable.Set(float64(unreachable))
}

// Handler returns an HTTP handler serving this registry in the prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for test assertions
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
