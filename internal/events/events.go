// Package events carries observability events from agent sessions to sinks.
// Sinks receive events fire-and-forget; an Emit call must never block the
// agent loop.
package events

import (
	"time"
)

// Type represents the kind of event.
type Type string

const (
	// TaskAdded indicates a task or subtask was added to the plan.
	TaskAdded Type = "task_added"
	// TaskRemoved indicates a task was removed from the plan.
	TaskRemoved Type = "task_removed"
	// TaskCompleted indicates a task reached completed status.
	TaskCompleted Type = "task_completed"
	// TaskUpdated indicates any other task mutation.
	TaskUpdated Type = "task_updated"
	// PlanSynthesized indicates a synthesis pass produced an accepted plan.
	PlanSynthesized Type = "plan_synthesized"
	// RankingDecision carries the ranked option list of one iteration.
	RankingDecision Type = "ranking_decision"
	// OptionExecuted indicates an option was executed against the desktop.
	OptionExecuted Type = "option_executed"
	// Thought is narration meant for a human watching the agent.
	Thought Type = "thought"
	// WorkDone indicates the session finished.
	WorkDone Type = "work_done"
	// PauseState indicates the session was paused or resumed.
	PauseState Type = "pause_state"
	// TokenUsage reports oracle token consumption.
	TokenUsage Type = "token_usage"
)

// Event is a single observability record.
type Event struct {
	// Type is the kind of event.
	Type Type `json:"type"`
	// SessionID is the session that produced the event, if known.
	SessionID string `json:"session_id,omitempty"`
	// TaskID is the ID of the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string `json:"task_title,omitempty"`
	// ParentID is the ID of the parent task, if applicable.
	ParentID string `json:"parent_id,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Error contains error details for failure events.
	Error string `json:"error,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// Tokens is the token count for token_usage events.
	Tokens int64 `json:"tokens,omitempty"`
	// Cost is the estimated cost in USD for token_usage events.
	Cost float64 `json:"cost,omitempty"`
	// Data holds event-specific structured payload.
	Data map[string]any `json:"data,omitempty"`
}

// Sink receives events. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout returns a Sink that forwards each event to all of sinks in order.
func Fanout(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range live {
			s.Emit(e)
		}
	})
}

// WithSession returns a Sink that stamps SessionID and Timestamp on events
// before forwarding them.
func WithSession(sessionID string, next Sink) Sink {
	if next == nil {
		next = Discard
	}
	return SinkFunc(func(e Event) {
		if e.SessionID == "" {
			e.SessionID = sessionID
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		next.Emit(e)
	})
}
