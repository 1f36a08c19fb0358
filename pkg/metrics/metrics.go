// Package metrics provides Prometheus metrics for discovery, the connection
// pool and the message router.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one node. All methods are safe on
// a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Discovery metrics
	BeaconsSent     *prometheus.CounterVec
	BeaconsReceived *prometheus.CounterVec
	LivePeers       prometheus.Gauge

	// Connection pool metrics
	ChannelsCreated prometheus.Counter
	DialFailures    prometheus.Counter
	OpenChannels    prometheus.Gauge

	// Router metrics
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance on its own registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BeaconsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_sent_total",
			Help:      "Presence beacons broadcast, by result",
		}, []string{"result"}),
		BeaconsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_received_total",
			Help:      "Datagrams received on the discovery port, by outcome",
		}, []string{"outcome"}),
		LivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_peers",
			Help:      "Peers currently inside the liveness window",
		}),

		ChannelsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_created_total",
			Help:      "Outbound channels established",
		}),
		DialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Failed attempts to establish an outbound channel",
		}),
		OpenChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_channels",
			Help:      "Outbound channels held by the pool",
		}),

		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport, by kind",
		}, []string{"kind"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages decoded and dispatched, by kind",
		}, []string{"kind"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped, by reason",
		}, []string{"reason"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in the router queues",
		}, []string{"queue"}),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordBeaconSent records one broadcast attempt
func (m *Metrics) RecordBeaconSent(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.BeaconsSent.WithLabelValues("ok").Inc()
	} else {
		m.BeaconsSent.WithLabelValues("error").Inc()
	}
}

// RecordBeaconReceived records one datagram with outcome valid, foreign or malformed
func (m *Metrics) RecordBeaconReceived(outcome string) {
	if m == nil {
		return
	}
	m.BeaconsReceived.WithLabelValues(outcome).Inc()
}

// UpdateLivePeers sets the live peer gauge
func (m *Metrics) UpdateLivePeers(n int) {
	if m == nil {
		return
	}
	m.LivePeers.Set(float64(n))
}

// RecordDial records one channel creation attempt
func (m *Metrics) RecordDial(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ChannelsCreated.Inc()
		m.OpenChannels.Inc()
	} else {
		m.DialFailures.Inc()
	}
}

// UpdateOpenChannels sets the open channel gauge
func (m *Metrics) UpdateOpenChannels(n int) {
	if m == nil {
		return
	}
	m.OpenChannels.Set(float64(n))
}

// RecordSent records a message handed to the transport
func (m *Metrics) RecordSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// RecordReceived records a decoded inbound message
func (m *Metrics) RecordReceived(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordDropped records a dropped message
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// UpdateQueueDepth sets the depth gauge of a router queue
func (m *Metrics) UpdateQueueDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(n))
}
