package orchestrator

import (
	"log/slog"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
)

// Defaults for the loop limits.
const (
	DefaultMaxEmptyRankings = 3
	DefaultActionMinScore   = 0.5
	DefaultMaxIterations    = 50
)

// RequiredConfig contains the collaborators an Agent cannot run without.
// All fields are required and have no defaults.
type RequiredConfig struct {
	Synthesizer Synthesizer
	Ranker      Ranker
	Executor    Executor
	Desktop     Desktop
}

// Option configures an Agent. Use With* functions to create Options.
type Option func(*agentOptions)

type agentOptions struct {
	id               string
	sink             events.Sink
	logger           *slog.Logger
	store            SessionStore
	tracker          *oracle.TokenTracker
	maxEmptyRankings int
	actionMinScore   float64
	maxIterations    int
	subtractivePass  bool
	now              func() time.Time
}

func defaultOptions() agentOptions {
	return agentOptions{
		sink:             events.Discard,
		logger:           slog.New(slog.DiscardHandler),
		maxEmptyRankings: DefaultMaxEmptyRankings,
		actionMinScore:   DefaultActionMinScore,
		maxIterations:    DefaultMaxIterations,
		now:              time.Now,
	}
}

// WithID sets the session ID. A random one is generated otherwise.
func WithID(id string) Option {
	return func(o *agentOptions) { o.id = id }
}

// WithSink sets the event sink. Events are stamped with the session ID.
func WithSink(s events.Sink) Option {
	return func(o *agentOptions) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *agentOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStore persists the session record after every iteration.
func WithStore(s SessionStore) Option {
	return func(o *agentOptions) { o.store = s }
}

// WithTokenTracker reports the tracker's totals as the session's token usage.
func WithTokenTracker(t *oracle.TokenTracker) Option {
	return func(o *agentOptions) { o.tracker = t }
}

// WithMaxEmptyRankings sets how many consecutive empty rankings end the
// session.
func WithMaxEmptyRankings(n int) Option {
	return func(o *agentOptions) {
		if n > 0 {
			o.maxEmptyRankings = n
		}
	}
}

// WithActionMinScore sets the score an action or close_window option must
// exceed to be executed.
func WithActionMinScore(score float64) Option {
	return func(o *agentOptions) { o.actionMinScore = score }
}

// WithMaxIterations caps the number of loop iterations. Zero or less
// disables the cap.
func WithMaxIterations(n int) Option {
	return func(o *agentOptions) { o.maxIterations = n }
}

// WithSubtractivePass runs a subtractive synthesis after each execution step.
func WithSubtractivePass(b bool) Option {
	return func(o *agentOptions) { o.subtractivePass = b }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *agentOptions) { o.now = now }
}
