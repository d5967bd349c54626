// Package metrics holds the Control Server's prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PortsAllocated counts every vsock port handed out by the
	// allocator, including ones later freed by delete.
	PortsAllocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "akari",
		Subsystem: "controlserver",
		Name:      "ports_allocated_total",
		Help:      "Total number of vsock ports allocated to containers.",
	})

	// ContainersByStatus tracks the current count of containers in each
	// lifecycle status.
	ContainersByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "akari",
		Subsystem: "controlserver",
		Name:      "containers",
		Help:      "Current number of containers in each lifecycle status.",
	}, []string{"status"})

	// ActiveProxies tracks the number of currently-connected Multiplexer
	// ports.
	ActiveProxies = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "akari",
		Subsystem: "vsockmux",
		Name:      "active_proxies",
		Help:      "Current number of connected vsock proxy ports.",
	})

	// AgentRequestDuration observes latency of each host-to-guest
	// round trip, labeled by request kind.
	AgentRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "akari",
		Subsystem: "controlserver",
		Name:      "agent_request_duration_seconds",
		Help:      "Latency of host-to-guest agent round trips.",
	}, []string{"kind"})
)

// MustRegister registers every collector in this package with r.
func MustRegister(r prometheus.Registerer) {
	r.MustRegister(PortsAllocated, ContainersByStatus, ActiveProxies, AgentRequestDuration)
}
