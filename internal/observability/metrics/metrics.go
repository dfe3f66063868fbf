package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the chat and turno flows.
type BookingMetrics struct {
	chatTurns     *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	syncCalls     *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns handled, by result",
		}, []string{"result"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "turnos",
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language model round-trips",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "appointments",
			Name:      "lifecycle_total",
			Help:      "Appointment lifecycle calls, by outcome",
		}, []string{"outcome"}),
		syncCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "appointments",
			Name:      "sync_total",
			Help:      "Downstream calendar/sheet/email calls, by target and status",
		}, []string{"target", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnos",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Patient emails, by kind and delivery status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.chatTurns, m.llmLatency, m.transitions, m.syncCalls, m.notifications)
	return m
}

func (m *BookingMetrics) ObserveTurn(result string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveLLM(status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status).Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSync(target, status string) {
	if m == nil {
		return
	}
	m.syncCalls.WithLabelValues(target, status).Inc()
}

func (m *BookingMetrics) ObserveEmail(kind string, delivered bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !delivered {
		status = "failed"
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}
