package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "medbook"

// AgentMetrics exposes counters/histograms for the tool-calling loop.
type AgentMetrics struct {
	turnsTotal     *prometheus.CounterVec
	rounds         prometheus.Histogram
	toolCallsTotal *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
}

func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Chat turns handled by the agent, by role and outcome",
		}, []string{"role", "outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "rounds",
			Help:      "Provider rounds used per chat turn",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the model",
		}, []string{"tool", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "llm_latency_seconds",
			Help:      "Latency of provider completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.rounds, m.toolCallsTotal, m.llmLatency)
	return m
}

func (m *AgentMetrics) ObserveTurn(role, outcome string, rounds int) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(role, outcome).Inc()
	m.rounds.Observe(float64(rounds))
}

func (m *AgentMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *AgentMetrics) ObserveLLMLatency(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider, status).Observe(seconds)
}

// BookingMetrics counts booking outcomes and side-effect delivery.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	sideEffectsTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome kind",
		}, []string{"outcome"}),
		sideEffectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_total",
			Help:      "Post-commit side effects by effect and status",
		}, []string{"effect", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.sideEffectsTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSideEffect(effect string, err error) {
	if m == nil {
		return
	}
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	m.sideEffectsTotal.WithLabelValues(effect, status).Inc()
}
