package models

import "time"

// SessionStatus represents the lifecycle state of an agent session.
type SessionStatus string

const (
	// SessionStatusIdle indicates the session has not started.
	SessionStatusIdle SessionStatus = "idle"
	// SessionStatusRunning indicates the agent loop is active.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusPaused indicates the loop halted and can be resumed.
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusCompleted indicates the loop terminated.
	SessionStatusCompleted SessionStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusIdle, SessionStatusRunning, SessionStatusPaused, SessionStatusCompleted:
		return true
	default:
		return false
	}
}

// Session is the persisted record of one agent run.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Goal is the user query that started the session.
	Goal string `json:"goal"`
	// Status is the current state of the session.
	Status SessionStatus `json:"status"`
	// PlanSource is the accepted plan program.
	PlanSource string `json:"plan_source,omitempty"`
	// LastGoodSource is the most recent source that executed cleanly.
	LastGoodSource string `json:"last_good_source,omitempty"`
	// Iterations counts completed loop iterations.
	Iterations int `json:"iterations"`
	// TokensUsed is the number of oracle tokens consumed so far.
	TokensUsed int64 `json:"tokens_used"`
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`
	// UpdatedAt is when the session was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryType classifies entries of a session's event history.
type HistoryType string

const (
	HistoryUserQuery   HistoryType = "user_query"
	HistoryNavigation  HistoryType = "navigation"
	HistoryAction      HistoryType = "action"
	HistoryObservation HistoryType = "observation"
	HistoryThought     HistoryType = "thought"
)

// HistoryEvent is one entry in the running context fed to the oracle.
type HistoryEvent struct {
	ID          string         `json:"id"`
	Date        time.Time      `json:"date"`
	Type        HistoryType    `json:"type"`
	Application string         `json:"application,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
}
