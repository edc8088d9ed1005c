package events

import "log/slog"

// LogSink writes events to a structured logger. Thought events are logged at
// info level; everything else at debug.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event.
func (s *LogSink) Emit(e Event) {
	attrs := []any{"type", string(e.Type)}
	if e.SessionID != "" {
		attrs = append(attrs, "session", e.SessionID)
	}
	if e.TaskID != "" {
		attrs = append(attrs, "task", e.TaskID, "title", e.TaskTitle)
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}
	if e.Tokens != 0 {
		attrs = append(attrs, "tokens", e.Tokens, "cost", e.Cost)
	}
	for k, v := range e.Data {
		attrs = append(attrs, k, v)
	}

	switch e.Type {
	case Thought, WorkDone, PauseState:
		s.logger.Info(e.Message, attrs...)
	default:
		s.logger.Debug(e.Message, attrs...)
	}
}
