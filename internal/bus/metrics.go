package bus

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the observability counters a durable bus needs:
// messages published/received/failed/DLQ'd, bytes in/out, reconnect
// attempts, current connection state.
type metrics struct {
	published       prometheus.Counter
	received        prometheus.Counter
	failed          prometheus.Counter
	deadLettered    prometheus.Counter
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	reconnects      prometheus.Counter
	connectionState prometheus.Gauge
}

// newMetrics registers the bus counters against reg. Passing a fresh
// registry (rather than the global default) keeps repeated ConnectNats
// calls in tests from panicking on duplicate registration.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "messages_published_total",
			Help: "Events successfully published to the durable stream.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "messages_received_total",
			Help: "Events delivered to a subscriber.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "messages_failed_total",
			Help: "Publish or subscribe operations that returned an error.",
		}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "messages_dead_lettered_total",
			Help: "Events routed to the dead-letter stream after exhausting max_deliver.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "bytes_in_total",
			Help: "Bytes received from subscriptions.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "bytes_out_total",
			Help: "Bytes published.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "reconnects_total",
			Help: "Transport reconnect attempts.",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orcaci", Subsystem: "bus", Name: "connection_state",
			Help: "1 if connected, 0 otherwise.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.received, m.failed, m.deadLettered, m.bytesIn, m.bytesOut, m.reconnects, m.connectionState)
	}
	return m
}
