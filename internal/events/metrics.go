package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Sink that turns events into Prometheus collectors.
type Metrics struct {
	events        *prometheus.CounterVec
	rankings      *prometheus.CounterVec
	syntheses     *prometheus.CounterVec
	tokens        prometheus.Counter
	sessionsState *prometheus.GaugeVec
}

// NewMetrics constructs a Metrics sink registered with reg. Pass a fresh
// registry when several instances must coexist (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wayfinder",
				Subsystem: "agent",
				Name:      "events_total",
				Help:      "Events emitted by agent sessions, by type.",
			},
			[]string{"type"},
		),
		rankings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wayfinder",
				Subsystem: "ranker",
				Name:      "decisions_total",
				Help:      "Ranking passes, labelled by whether any option survived filtering.",
			},
			[]string{"outcome"},
		),
		syntheses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wayfinder",
				Subsystem: "synth",
				Name:      "plans_total",
				Help:      "Accepted plans by how they were obtained.",
			},
			[]string{"outcome"},
		),
		tokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wayfinder",
				Subsystem: "oracle",
				Name:      "tokens_total",
				Help:      "Oracle tokens consumed.",
			},
		),
		sessionsState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "wayfinder",
				Subsystem: "agent",
				Name:      "session_transitions",
				Help:      "Session state transitions observed, by target state.",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(m.events, m.rankings, m.syntheses, m.tokens, m.sessionsState)
	return m
}

// Emit updates the collectors for e.
func (m *Metrics) Emit(e Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case RankingDecision:
		outcome := "empty"
		if n, ok := e.Data["count"].(int); ok && n > 0 {
			outcome = "selected"
		}
		m.rankings.WithLabelValues(outcome).Inc()
	case PlanSynthesized:
		if outcome, ok := e.Data["outcome"].(string); ok {
			m.syntheses.WithLabelValues(outcome).Inc()
		}
	case TokenUsage:
		if e.Tokens > 0 {
			m.tokens.Add(float64(e.Tokens))
		}
	case PauseState, WorkDone:
		if state, ok := e.Data["state"].(string); ok {
			m.sessionsState.WithLabelValues(state).Inc()
		}
	}
}
