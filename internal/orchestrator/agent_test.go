package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/executor"
	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/internal/rank"
	"github.com/ShayCichocki/wayfinder/internal/synth"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// fakeSynth hands out one shared graph with a single task and numbers the
// accepted sources.
type fakeSynth struct {
	mu     sync.Mutex
	graph  *plan.TaskGraph
	modes  []synth.Mode
	inputs []synth.Input
}

func newFakeSynth() *fakeSynth {
	g := plan.New()
	g.AddTask("Send report", "Email the quarterly report to Ada")
	return &fakeSynth{graph: g}
}

func (f *fakeSynth) Synthesize(ctx context.Context, mode synth.Mode, in synth.Input) (*synth.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	f.inputs = append(f.inputs, in)
	src := fmt.Sprintf("# pass %d", len(f.modes))
	return &synth.Result{Graph: f.graph, Source: src, LastGood: src, Outcome: synth.OutcomeGenerated}, nil
}

func (f *fakeSynth) calls() []synth.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]synth.Mode(nil), f.modes...)
}

// fakeRanker returns rounds in order, then nothing.
type fakeRanker struct {
	mu     sync.Mutex
	rounds [][]models.RankedOption
	calls  int
	// hook runs before each result is returned, with the 1-based call number.
	hook func(call int)
	// repeat returns the last round forever once rounds run out.
	repeat bool
}

func (f *fakeRanker) Rank(ctx context.Context, in rank.Input) []models.RankedOption {
	f.mu.Lock()
	f.calls++
	call := f.calls
	var out []models.RankedOption
	switch {
	case call <= len(f.rounds):
		out = f.rounds[call-1]
	case f.repeat && len(f.rounds) > 0:
		out = f.rounds[len(f.rounds)-1]
	}
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return out
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	onExec   func(opt models.RankedOption) error
}

func (f *fakeExecutor) Execute(ctx context.Context, opt models.RankedOption, hc executor.Context) ([]models.HistoryEvent, error) {
	f.mu.Lock()
	f.executed = append(f.executed, opt.Token)
	onExec := f.onExec
	f.mu.Unlock()
	var err error
	if onExec != nil {
		err = onExec(opt)
	}
	return []models.HistoryEvent{{Type: models.HistoryAction, Content: map[string]any{"action_id": opt.Token}}}, err
}

func (f *fakeExecutor) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

type staticDesktop struct{}

func (staticDesktop) Windows(ctx context.Context) ([]models.Window, error) {
	return []models.Window{{ID: "/", View: models.View{Type: "desktop", Name: "Desktop"}}}, nil
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	saves    int
}

func (m *memStore) SaveSession(ctx context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = map[string]models.Session{}
	}
	m.sessions[s.ID] = s
	m.saves++
	return nil
}

func option(kind models.OptionKind, token string, score float64) models.RankedOption {
	return models.RankedOption{Option: models.Option{Token: token, Kind: kind, Name: "option " + token}, Score: score}
}

type fixture struct {
	synth  *fakeSynth
	ranker *fakeRanker
	exec   *fakeExecutor
	sink   *recordingSink
}

func newFixture(rounds ...[]models.RankedOption) *fixture {
	return &fixture{
		synth:  newFakeSynth(),
		ranker: &fakeRanker{rounds: rounds},
		exec:   &fakeExecutor{},
		sink:   &recordingSink{},
	}
}

func (f *fixture) agent(opts ...Option) *Agent {
	all := append([]Option{WithSink(f.sink), WithID("s1")}, opts...)
	return New(RequiredConfig{
		Synthesizer: f.synth,
		Ranker:      f.ranker,
		Executor:    f.exec,
		Desktop:     staticDesktop{},
	}, all...)
}

// completeOnAction finishes the plan when any action runs.
func (f *fixture) completeOnAction() {
	f.exec.onExec = func(opt models.RankedOption) error {
		if opt.Kind == models.OptionAction {
			f.synth.graph.CompleteAll()
		}
		return nil
	}
}

func TestAgent_ExecutesLinksAndBestAction(t *testing.T) {
	f := newFixture([]models.RankedOption{
		option(models.OptionClickLink, "0", 0.95),
		option(models.OptionAction, "2", 0.9),
		option(models.OptionClickLink, "1", 0.3),
		option(models.OptionCloseWindow, "4", 0.8),
		option(models.OptionAction, "3", 0.7),
	})
	f.completeOnAction()
	a := f.agent()

	if err := a.Start(context.Background(), "Send Ada the report"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := fmt.Sprint(f.exec.tokens()); got != "[0 1 2]" {
		t.Errorf("executed = %s, want [0 1 2]", got)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() = %s, want completed", a.Status())
	}
	if got := f.synth.calls(); len(got) != 2 || got[0] != synth.Additive || got[1] != synth.Additive {
		t.Errorf("synthesis calls = %v, want initial and one additive pass", got)
	}

	hist := a.History()
	if hist[0].Type != models.HistoryUserQuery || hist[0].Content["text"] != "Send Ada the report" {
		t.Errorf("first history event = %+v", hist[0])
	}
	done := f.sink.ofType(events.WorkDone)
	if len(done) != 1 || done[0].SessionID != "s1" || done[0].Data["state"] != "completed" {
		t.Errorf("work_done events = %+v", done)
	}
}

func TestAgent_ActionScoreMustExceedMinimum(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  string
	}{
		{"above minimum", 0.51, "[a]"},
		{"at minimum", 0.5, "[]"},
		{"below minimum", 0.3, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture([]models.RankedOption{option(models.OptionAction, "a", tt.score)})
			a := f.agent(WithMaxIterations(1))
			if err := a.Start(context.Background(), "goal"); err != nil {
				t.Fatal(err)
			}
			if got := fmt.Sprint(f.exec.tokens()); got != tt.want {
				t.Errorf("executed = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAgent_EmptyRankingsCompletePlan(t *testing.T) {
	f := newFixture()
	a := f.agent()

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Fatalf("Status() = %s, want completed", a.Status())
	}
	if !f.synth.graph.AllCompleted() {
		t.Error("tasks not marked completed after repeated empty rankings")
	}
	if n := a.Snapshot().Iterations; n != DefaultMaxEmptyRankings {
		t.Errorf("Iterations = %d, want %d", n, DefaultMaxEmptyRankings)
	}

	var observations int
	for _, h := range a.History() {
		if h.Type == models.HistoryObservation && h.Content["description"] == emptyRankingDescription {
			observations++
		}
	}
	if observations != DefaultMaxEmptyRankings {
		t.Errorf("empty ranking observations = %d, want %d", observations, DefaultMaxEmptyRankings)
	}
}

func TestAgent_NonEmptyRankingResetsCounter(t *testing.T) {
	f := newFixture(nil, nil, []models.RankedOption{option(models.OptionAction, "a", 0.2)})
	a := f.agent()

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if n := a.Snapshot().Iterations; n != 6 {
		t.Errorf("Iterations = %d, want 6", n)
	}
	if len(f.exec.tokens()) != 0 {
		t.Errorf("executed = %v, want nothing", f.exec.tokens())
	}
}

func TestAgent_IterationCap(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionClickLink, "0", 0.9)})
	f.ranker.repeat = true
	a := f.agent(WithMaxIterations(4))

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() = %s, want completed", a.Status())
	}
	if n := a.Snapshot().Iterations; n != 4 {
		t.Errorf("Iterations = %d, want 4", n)
	}
	done := f.sink.ofType(events.WorkDone)
	if len(done) != 1 || done[0].Message != "iteration limit reached" {
		t.Errorf("work_done = %+v", done)
	}
}

func TestAgent_PauseBeforeStart(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.completeOnAction()
	a := f.agent()

	if err := a.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if a.Status() != models.SessionStatusPaused {
		t.Fatalf("Status() = %s, want paused", a.Status())
	}
	if len(f.synth.calls()) != 0 {
		t.Error("synthesis ran while paused")
	}

	if err := a.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() after resume = %s, want completed", a.Status())
	}
}

func TestAgent_PauseAndResumePreserveState(t *testing.T) {
	f := newFixture(
		[]models.RankedOption{option(models.OptionClickLink, "0", 0.9)},
		[]models.RankedOption{option(models.OptionAction, "1", 0.9)},
	)
	f.completeOnAction()
	a := f.agent()
	f.ranker.hook = func(call int) {
		if call == 1 {
			if err := a.Pause(); err != nil {
				t.Errorf("Pause() error = %v", err)
			}
		}
	}

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if a.Status() != models.SessionStatusPaused {
		t.Fatalf("Status() = %s, want paused", a.Status())
	}
	if got := fmt.Sprint(f.exec.tokens()); got != "[0]" {
		t.Errorf("executed before pause = %s, want the iteration in flight to finish", got)
	}
	graph, source := a.Graph(), a.Source()

	if err := a.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() = %s, want completed", a.Status())
	}
	if a.Graph() != graph {
		t.Error("graph replaced across pause")
	}
	inputs := f.synth.inputs
	if got := inputs[len(inputs)-1].Source; got != source {
		t.Errorf("synthesis after resume saw source %q, want %q", got, source)
	}

	states := f.sink.ofType(events.PauseState)
	if len(states) != 2 || states[0].Data["state"] != "paused" || states[1].Data["state"] != "running" {
		t.Errorf("pause_state events = %+v", states)
	}
}

func TestAgent_CancellationParksSession(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.completeOnAction()
	ctx, cancel := context.WithCancel(context.Background())
	f.ranker.hook = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	a := f.agent()

	err := a.Start(ctx, "goal")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() error = %v, want context.Canceled", err)
	}
	if a.Status() != models.SessionStatusPaused {
		t.Errorf("Status() = %s, want paused", a.Status())
	}
	if len(f.exec.tokens()) != 0 {
		t.Error("options executed after cancellation")
	}

	if err := a.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() after resume = %s", a.Status())
	}
}

func TestAgent_StateErrors(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.completeOnAction()
	a := f.agent()

	if err := a.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume() on idle = %v, want ErrNotPaused", err)
	}
	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background(), "again"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
	if err := a.Pause(); !errors.Is(err, ErrCompleted) {
		t.Errorf("Pause() on completed = %v, want ErrCompleted", err)
	}
}

func TestAgent_ExecutionFailureIsNarrated(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.exec.onExec = func(models.RankedOption) error { return errors.New("window vanished") }
	a := f.agent(WithMaxIterations(1))

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(f.sink.ofType(events.Thought)) == 0 {
		t.Error("no thought emitted for a failed option")
	}
	if h := a.History(); h[len(h)-1].Content["action_id"] != "a" {
		t.Error("history of the failed option not recorded")
	}
}

func TestAgent_SubtractivePass(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.completeOnAction()
	a := f.agent(WithSubtractivePass(true))

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	got := f.synth.calls()
	if len(got) != 3 || got[2] != synth.Subtractive {
		t.Errorf("synthesis calls = %v, want subtractive pass after execution", got)
	}
}

func TestAgent_PersistsSession(t *testing.T) {
	f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
	f.completeOnAction()
	store := &memStore{}
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := f.agent(WithStore(store), WithClock(func() time.Time { return clock }))

	if err := a.Start(context.Background(), "goal"); err != nil {
		t.Fatal(err)
	}
	s, ok := store.sessions["s1"]
	if !ok {
		t.Fatal("session not saved")
	}
	if s.Status != models.SessionStatusCompleted || s.PlanSource != "# pass 2" || s.Goal != "goal" {
		t.Errorf("saved session = %+v", s)
	}
	if !s.StartedAt.Equal(clock) {
		t.Errorf("StartedAt = %v", s.StartedAt)
	}
}

func TestAgent_RunWaitsAcrossPauses(t *testing.T) {
	f := newFixture(
		[]models.RankedOption{option(models.OptionClickLink, "0", 0.9)},
		[]models.RankedOption{option(models.OptionAction, "1", 0.9)},
	)
	f.completeOnAction()
	a := f.agent()
	f.ranker.hook = func(call int) {
		if call == 1 {
			_ = a.Pause()
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background(), "goal") }()

	waitForStatus(t, a, models.SessionStatusPaused)
	if err := a.Unpause(); err != nil {
		t.Fatalf("Unpause() error = %v", err)
	}

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Unpause")
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() = %s, want completed", a.Status())
	}
}

func TestAgent_StopReleasesRun(t *testing.T) {
	f := newFixture()
	a := f.agent()
	_ = a.Pause()

	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background(), "goal") }()
	waitForStatus(t, a, models.SessionStatusPaused)
	a.Stop()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after Stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Stop")
	}
}

func waitForStatus(t *testing.T, a *Agent, want models.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", a.Status(), want)
}
