package rpccontext

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the context's prometheus surface, grounded on the teacher's
// MetricsRecorder pattern and its github.com/prometheus/client_golang
// direct dependency.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	CallsDispatched   prometheus.Counter
	EventsEmitted     prometheus.Counter
	DroppedFrames     prometheus.Counter
}

// NewMetrics registers a fresh Metrics set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "librpc",
			Name:      "active_connections",
			Help:      "Number of connections currently bound to the context.",
		}),
		CallsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "librpc",
			Name:      "calls_dispatched_total",
			Help:      "Number of inbound rpc.call frames dispatched to the worker pool.",
		}),
		EventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "librpc",
			Name:      "events_emitted_total",
			Help:      "Number of events.event frames sent to subscribed connections.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "librpc",
			Name:      "dropped_frames_total",
			Help:      "Number of inbound frames dropped as malformed or spurious.",
		}),
	}
	reg.MustRegister(m.ActiveConnections, m.CallsDispatched, m.EventsEmitted, m.DroppedFrames)
	return m
}
