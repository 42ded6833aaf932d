package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the queue engine. All observe
// methods are nil-safe so wiring stays optional in tests.
type Metrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	tokensIssued     *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	notificationsOut *prometheus.CounterVec
	realtimeClients  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseops",
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "Queue engine operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulseops",
			Subsystem: "queue",
			Name:      "operation_latency_seconds",
			Help:      "Latency of queue engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseops",
			Subsystem: "queue",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by priority",
		}, []string{"priority"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseops",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Queue events published",
		}, []string{"event_type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseops",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Queue events dropped by sink",
		}, []string{"sink"}),
		notificationsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseops",
			Subsystem: "notify",
			Name:      "outbound_total",
			Help:      "Outbound notifications by channel and status",
		}, []string{"channel", "status"}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseops",
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected websocket subscribers",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal,
		m.operationLatency,
		m.tokensIssued,
		m.eventsPublished,
		m.eventsDropped,
		m.notificationsOut,
		m.realtimeClients,
	)
	return m
}

// ObserveOperation records one engine operation and its latency.
func (m *Metrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

// TokenIssued counts one issued token.
func (m *Metrics) TokenIssued(priority string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(priority).Inc()
}

// EventPublished counts one published queue event.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped counts one event a sink failed to take.
func (m *Metrics) EventDropped(sink string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(sink).Inc()
}

// NotificationSent counts one outbound notification attempt.
func (m *Metrics) NotificationSent(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsOut.WithLabelValues(channel, status).Inc()
}

// RealtimeClientConnected tracks one subscriber attach.
func (m *Metrics) RealtimeClientConnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Inc()
}

// RealtimeClientDisconnected tracks one subscriber detach.
func (m *Metrics) RealtimeClientDisconnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Dec()
}
