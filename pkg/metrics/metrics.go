package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters and histograms for booking and payment flows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	bookingTransitions *prometheus.CounterVec
	bookingConflicts   prometheus.Counter
	webhookEvents      *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
	sweepCompleted     prometheus.Counter
	slotCache          *prometheus.CounterVec
	gatewayRequests    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking state transitions by action and result",
		}, []string{"action", "result"}),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by kind and outcome",
		}, []string{"event", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of payment webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		sweepCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "sweeper",
			Name:      "auto_completed_total",
			Help:      "Bookings auto-completed after the confirmation window",
		}),
		slotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "slots",
			Name:      "cache_lookups_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Outbound payment gateway calls by operation and status",
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingTransitions,
		m.bookingConflicts,
		m.webhookEvents,
		m.webhookLatency,
		m.sweepCompleted,
		m.slotCache,
		m.gatewayRequests,
	)
	return m
}

func (m *Metrics) ObserveTransition(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.bookingTransitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.bookingConflicts.Inc()
}

func (m *Metrics) ObserveWebhook(event, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
	m.webhookLatency.WithLabelValues(event).Observe(seconds)
}

func (m *Metrics) ObserveSweep(completed int) {
	if m == nil {
		return
	}
	m.sweepCompleted.Add(float64(completed))
}

// ObserveSlotCache records "hit", "miss" or "error".
func (m *Metrics) ObserveSlotCache(result string) {
	if m == nil {
		return
	}
	m.slotCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGateway(operation, status string) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, status).Inc()
}
