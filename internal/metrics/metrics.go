package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "swapy_relay"

// Event names used as the `event` label of swapy_relay_events_total.
const (
	ConnectionsRegistered = "connections_registered"
	ConnectionsRejected   = "connections_rejected_quota"
	PairingsEstablished   = "pairings_established"
	PairingsPending       = "pairings_pending"
	PartnerLeft           = "partner_left"
	PairingsSkipped       = "pairings_skipped"
	RelayForwarded        = "relay_forwarded"
	RelayDropped          = "relay_dropped"
	EventsUndeliverable   = "events_undeliverable"

	SignalingMalformed   = "signaling_malformed_dropped"
	SignalingRateLimited = "signaling_rate_limited"
	SignalingTooLarge    = "signaling_message_too_large"
	SignalingUnauthed    = "signaling_unauthenticated"
	SendQueueOverflow    = "send_queue_overflow"

	ReconnectGranted             = "reconnect_granted"
	ReconnectUnauthenticated     = "reconnect_unauthenticated"
	ReconnectEntitlementRequired = "reconnect_entitlement_required"
	ReconnectNoPriorPartner      = "reconnect_no_prior_partner"
	ReconnectFailed              = "reconnect_failed"
)

// Metrics wraps a private Prometheus registry so tests and multiple servers in
// one process never collide on the default registerer.
type Metrics struct {
	reg *prometheus.Registry

	events     *prometheus.CounterVec
	live       prometheus.Gauge
	waiting    prometheus.Gauge
	pairs      prometheus.Gauge
	queueDrops prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pairing, relay and signaling events.",
		}, []string{"event"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Registered client connections.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_connections",
			Help:      "Connections parked in the waiting pool.",
		}),
		pairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pairings",
			Help:      "Live pairings between two connections.",
		}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_queue_dropped_bytes_total",
			Help:      "Outbound bytes discarded because a connection's send queue was full.",
		}),
	}
	reg.MustRegister(
		m.events,
		m.live,
		m.waiting,
		m.pairs,
		m.queueDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Inc(event string) {
	m.Add(event, 1)
}

func (m *Metrics) Add(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.events.WithLabelValues(event).Add(float64(n))
}

// Get returns the current value of an event counter.
func (m *Metrics) Get(event string) uint64 {
	if m == nil {
		return 0
	}
	var out dto.Metric
	if err := m.events.WithLabelValues(event).Write(&out); err != nil {
		return 0
	}
	return uint64(out.GetCounter().GetValue())
}

// SetPool publishes the matching service's occupancy.
func (m *Metrics) SetPool(live, waiting, pairs int) {
	if m == nil {
		return
	}
	m.live.Set(float64(live))
	m.waiting.Set(float64(waiting))
	m.pairs.Set(float64(pairs))
}

func (m *Metrics) AddDroppedBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queueDrops.Add(float64(n))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
