package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments updated by the engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Peers            prometheus.Gauge
	Connections      prometheus.Counter
	Disconnections   prometheus.Counter
	AcceptErrors     prometheus.Counter
	MessagesReceived prometheus.Counter
	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter
	PeersPruned      prometheus.Counter
	BroadcastFanout  prometheus.Histogram
}

// NewMetrics creates the instruments under namespace and registers them
// with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of currently registered peers",
		}),
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted and registered connections",
		}),
		Disconnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnections_total",
			Help:      "Total number of peers whose receive loop ended",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Total number of non-fatal accept errors",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages read from peers",
		}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of messages queued to a recipient",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of failed queue or write attempts",
		}),
		PeersPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_pruned_total",
			Help:      "Total number of peers removed after a failed send",
		}),
		BroadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Number of recipients per broadcast",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.Connections.Inc()
	m.Peers.Inc()
}

func (m *Metrics) disconnected() {
	if m == nil {
		return
	}
	m.Disconnections.Inc()
}

func (m *Metrics) removed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Peers.Sub(float64(n))
}

func (m *Metrics) acceptError() {
	if m == nil {
		return
	}
	m.AcceptErrors.Inc()
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *Metrics) broadcast(targets, queued, failed int) {
	if m == nil {
		return
	}
	m.BroadcastFanout.Observe(float64(targets))
	m.Deliveries.Add(float64(queued))
	m.DeliveryFailures.Add(float64(failed))
}

func (m *Metrics) writeFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) pruned() {
	if m == nil {
		return
	}
	m.PeersPruned.Inc()
}
