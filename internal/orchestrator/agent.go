package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/wayfinder/internal/catalog"
	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/executor"
	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/internal/rank"
	"github.com/ShayCichocki/wayfinder/internal/synth"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

var (
	// ErrAlreadyStarted is returned by Start on a session that left idle.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotPaused is returned by Resume on a session that is not paused.
	ErrNotPaused = errors.New("session not paused")
	// ErrCompleted is returned when pausing a finished session.
	ErrCompleted = errors.New("session completed")
	// ErrBusy is returned when the loop of the session is already running.
	ErrBusy = errors.New("session loop already running")
)

// Synthesizer produces the plan of an iteration.
type Synthesizer interface {
	Synthesize(ctx context.Context, mode synth.Mode, in synth.Input) (*synth.Result, error)
}

// Ranker scores the options of a catalog. An empty result is not an error.
type Ranker interface {
	Rank(ctx context.Context, in rank.Input) []models.RankedOption
}

// Executor carries out a ranked option.
type Executor interface {
	Execute(ctx context.Context, opt models.RankedOption, hc executor.Context) ([]models.HistoryEvent, error)
}

// Desktop lists the open windows.
type Desktop interface {
	Windows(ctx context.Context) ([]models.Window, error)
}

// SessionStore persists session records.
type SessionStore interface {
	SaveSession(ctx context.Context, s models.Session) error
}

const (
	emptyRankingDescription = "No link was clicked, and no action was selected in the last loop"
	emptyRankingText        = "Maybe you can try to do something else, or update the execution plan"
)

// Agent runs the plan, rank and execute loop of one session.
type Agent struct {
	req    RequiredConfig
	opts   agentOptions
	id     string
	sink   events.Sink
	logger *slog.Logger
	pause  *PauseController

	mu         sync.Mutex
	status     models.SessionStatus
	looping    bool
	goal       string
	graph      *plan.TaskGraph
	source     string
	lastGood   string
	history    []models.HistoryEvent
	emptyRuns  int
	iterations int
	startedAt  time.Time
	updatedAt  time.Time
}

// New creates an idle Agent.
func New(req RequiredConfig, opts ...Option) *Agent {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return &Agent{
		req:    req,
		opts:   o,
		id:     o.id,
		sink:   events.WithSession(o.id, o.sink),
		logger: o.logger.With("session", o.id),
		pause:  NewPauseController(),
		status: models.SessionStatusIdle,
	}
}

// ID returns the session ID.
func (a *Agent) ID() string { return a.id }

// Status returns the current lifecycle state.
func (a *Agent) Status() models.SessionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Graph returns the current plan, nil before the first synthesis.
func (a *Agent) Graph() *plan.TaskGraph {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph
}

// Source returns the accepted plan program.
func (a *Agent) Source() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source
}

// History returns a copy of the session's event history.
func (a *Agent) History() []models.HistoryEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.HistoryEvent(nil), a.history...)
}

// Snapshot returns the session record.
func (a *Agent) Snapshot() models.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := models.Session{
		ID:             a.id,
		Goal:           a.goal,
		Status:         a.status,
		PlanSource:     a.source,
		LastGoodSource: a.lastGood,
		Iterations:     a.iterations,
		StartedAt:      a.startedAt,
		UpdatedAt:      a.updatedAt,
	}
	if a.opts.tracker != nil {
		in, out := a.opts.tracker.Total()
		s.TokensUsed = in + out
	}
	return s
}

// Start records goal as the user query and runs the loop until the session
// completes or pauses. A pause requested before Start leaves the session
// paused without running anything.
func (a *Agent) Start(ctx context.Context, goal string) error {
	a.mu.Lock()
	if a.status != models.SessionStatusIdle {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.goal = goal
	a.startedAt = a.opts.now()
	a.history = append(a.history, a.historyEvent(models.HistoryUserQuery, map[string]any{"text": goal}))
	a.mu.Unlock()

	a.logger.Info("session started", "goal", goal)
	return a.loop(ctx, true)
}

// Pause asks the loop to halt before its next iteration. The iteration in
// flight, including any oracle call, runs to completion.
func (a *Agent) Pause() error {
	if a.Status() == models.SessionStatusCompleted {
		return ErrCompleted
	}
	if a.pause.Pause() {
		a.logger.Info("pause requested")
	}
	return nil
}

// Resume clears the pause and runs the loop again with the graph, plan
// program and history preserved. It blocks like Start.
func (a *Agent) Resume(ctx context.Context) error {
	if err := a.Unpause(); err != nil {
		return err
	}
	return a.loop(ctx, a.Graph() == nil)
}

// Unpause clears the pause without running the loop. Sessions driven by Run
// pick the change up and continue on their own goroutine.
func (a *Agent) Unpause() error {
	status := a.Status()
	if status != models.SessionStatusPaused && !a.pause.IsPaused() {
		return ErrNotPaused
	}
	a.pause.Resume()
	a.sink.Emit(events.Event{
		Type:    events.PauseState,
		Message: "resumed",
		Data:    map[string]any{"state": string(models.SessionStatusRunning)},
	})
	a.logger.Info("session resumed")
	return nil
}

// Run starts the session and keeps it alive across pauses: whenever the loop
// halts on a pause it waits for Unpause and continues. It returns once the
// session completes, Stop is called or ctx is done.
func (a *Agent) Run(ctx context.Context, goal string) error {
	err := a.Start(ctx, goal)
	for err == nil && a.Status() == models.SessionStatusPaused {
		if werr := a.pause.WaitIfPaused(ctx); werr != nil {
			if errors.Is(werr, ErrStopped) {
				return nil
			}
			return werr
		}
		err = a.loop(ctx, a.Graph() == nil)
	}
	return err
}

// Stop pauses the session and releases Run for good.
func (a *Agent) Stop() {
	a.pause.Pause()
	a.pause.Stop()
}

func (a *Agent) enter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.looping {
		return false
	}
	a.looping = true
	return true
}

func (a *Agent) leave() {
	a.mu.Lock()
	a.looping = false
	a.mu.Unlock()
}

func (a *Agent) loop(ctx context.Context, initial bool) error {
	if !a.enter() {
		return ErrBusy
	}
	defer a.leave()

	if a.pause.IsPaused() {
		a.halt(ctx)
		return nil
	}
	a.setStatus(models.SessionStatusRunning)

	if initial {
		if err := a.synthesize(ctx, synth.Additive); err != nil {
			return a.interrupted(ctx, err)
		}
	}

	for {
		if a.pause.IsPaused() {
			a.halt(ctx)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return a.interrupted(ctx, err)
		}
		if limit := a.opts.maxIterations; limit > 0 && a.iterationCount() >= limit {
			a.logger.Warn("iteration limit reached", "limit", limit)
			a.finish(ctx, "iteration limit reached")
			return nil
		}

		reason, err := a.step(ctx)
		if err != nil {
			return a.interrupted(ctx, err)
		}
		a.persist(ctx)
		if reason != "" {
			a.finish(ctx, reason)
			return nil
		}
	}
}

// step runs one iteration. A non-empty reason ends the session.
func (a *Agent) step(ctx context.Context) (string, error) {
	a.mu.Lock()
	a.iterations++
	n := a.iterations
	a.mu.Unlock()
	a.logger.Debug("iteration started", "iteration", n)

	if err := a.synthesize(ctx, synth.Additive); err != nil {
		return "", err
	}

	cat := catalog.Build(a.windows(ctx))
	ranked := a.req.Ranker.Rank(ctx, rank.Input{
		History: a.History(),
		Plan:    a.Graph(),
		Catalog: cat,
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(ranked) == 0 {
		a.mu.Lock()
		a.history = append(a.history, a.historyEvent(models.HistoryObservation, map[string]any{
			"description": emptyRankingDescription,
			"text":        emptyRankingText,
		}))
		a.emptyRuns++
		empty := a.emptyRuns
		a.mu.Unlock()

		a.logger.Info("nothing selected", "consecutive", empty)
		if empty >= a.opts.maxEmptyRankings {
			a.Graph().CompleteAll()
			return fmt.Sprintf("no option selected in %d consecutive iterations", empty), nil
		}
	} else {
		a.mu.Lock()
		a.emptyRuns = 0
		a.mu.Unlock()

		a.execute(ctx, ranked)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if a.opts.subtractivePass {
			if err := a.synthesize(ctx, synth.Subtractive); err != nil {
				return "", err
			}
		}
	}

	if a.Graph().AllCompleted() {
		return "all tasks completed", nil
	}
	return "", nil
}

// execute runs every link and the best action or close_window whose score
// clears the action minimum. ranked is sorted best first.
func (a *Agent) execute(ctx context.Context, ranked []models.RankedOption) {
	var chosen *models.RankedOption
	for i := range ranked {
		opt := ranked[i]
		switch opt.Kind {
		case models.OptionClickLink:
			a.executeOne(ctx, opt)
		case models.OptionAction, models.OptionCloseWindow:
			if chosen == nil && opt.Score > a.opts.actionMinScore {
				chosen = &ranked[i]
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
	if chosen != nil {
		a.executeOne(ctx, *chosen)
	}
}

func (a *Agent) executeOne(ctx context.Context, opt models.RankedOption) {
	hist, err := a.req.Executor.Execute(ctx, opt, executor.Context{
		History: a.History(),
		Plan:    rank.FormatPlan(a.Graph()),
	})

	a.mu.Lock()
	a.history = append(a.history, hist...)
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("option failed", "token", opt.Token, "kind", opt.Kind, "name", opt.Name, "error", err)
		a.thought(fmt.Sprintf("Could not complete %q", opt.Name))
		return
	}
	a.logger.Info("option executed", "token", opt.Token, "kind", opt.Kind, "name", opt.Name, "score", opt.Score)
}

func (a *Agent) synthesize(ctx context.Context, mode synth.Mode) error {
	a.mu.Lock()
	in := synth.Input{
		History:  append([]models.HistoryEvent(nil), a.history...),
		Source:   a.source,
		LastGood: a.lastGood,
	}
	a.mu.Unlock()
	in.Windows = a.windows(ctx)

	res, err := a.req.Synthesizer.Synthesize(ctx, mode, in)
	if err != nil {
		return fmt.Errorf("%s synthesis: %w", mode, err)
	}

	a.mu.Lock()
	a.graph = res.Graph
	a.source = res.Source
	a.lastGood = res.LastGood
	a.mu.Unlock()

	a.logger.Debug("plan adopted", "mode", mode, "outcome", res.Outcome, "tasks", res.Graph.Len())
	return nil
}

func (a *Agent) windows(ctx context.Context) []models.Window {
	wins, err := a.req.Desktop.Windows(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("listing windows failed", "error", err)
		}
		return nil
	}
	return wins
}

func (a *Agent) iterationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.iterations
}

func (a *Agent) setStatus(s models.SessionStatus) {
	a.mu.Lock()
	a.status = s
	a.updatedAt = a.opts.now()
	a.mu.Unlock()
}

func (a *Agent) halt(ctx context.Context) {
	a.setStatus(models.SessionStatusPaused)
	a.sink.Emit(events.Event{
		Type:    events.PauseState,
		Message: "paused",
		Data:    map[string]any{"state": string(models.SessionStatusPaused)},
	})
	a.logger.Info("session paused")
	a.persist(ctx)
}

// interrupted parks a session whose context was cancelled so it can be
// resumed later.
func (a *Agent) interrupted(ctx context.Context, err error) error {
	a.setStatus(models.SessionStatusPaused)
	a.sink.Emit(events.Event{
		Type:    events.PauseState,
		Message: "interrupted",
		Error:   err.Error(),
		Data:    map[string]any{"state": string(models.SessionStatusPaused)},
	})
	a.logger.Warn("session interrupted", "error", err)
	a.persist(ctx)
	return err
}

func (a *Agent) finish(ctx context.Context, reason string) {
	a.setStatus(models.SessionStatusCompleted)
	var stats plan.Stats
	if g := a.Graph(); g != nil {
		stats = g.Stats()
	}
	a.sink.Emit(events.Event{
		Type:    events.WorkDone,
		Message: reason,
		Data: map[string]any{
			"state":      string(models.SessionStatusCompleted),
			"iterations": a.iterationCount(),
			"tasks":      stats.TotalTasks,
		},
	})
	a.logger.Info("session completed", "reason", reason, "iterations", a.iterationCount())
	a.persist(ctx)
}

func (a *Agent) thought(msg string) {
	a.sink.Emit(events.Event{Type: events.Thought, Message: msg})
}

func (a *Agent) persist(ctx context.Context) {
	if a.opts.store == nil {
		return
	}
	a.mu.Lock()
	a.updatedAt = a.opts.now()
	a.mu.Unlock()
	if err := a.opts.store.SaveSession(context.WithoutCancel(ctx), a.Snapshot()); err != nil {
		a.logger.Warn("saving session failed", "error", err)
	}
}

// historyEvent must be called with a.mu held or before the agent is shared.
func (a *Agent) historyEvent(typ models.HistoryType, content map[string]any) models.HistoryEvent {
	return models.HistoryEvent{
		ID:          uuid.NewString(),
		Date:        a.opts.now(),
		Type:        typ,
		Application: "os",
		Content:     content,
	}
}
