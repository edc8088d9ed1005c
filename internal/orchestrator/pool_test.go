package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// completingFactory builds sessions whose first action completes their plan.
func completingFactory(t *testing.T) (Factory, *sync.Map) {
	t.Helper()
	sinks := &sync.Map{}
	return func(id string, sink events.Sink) (RequiredConfig, []Option, error) {
		f := newFixture([]models.RankedOption{option(models.OptionAction, "a", 0.9)})
		f.completeOnAction()
		sinks.Store(id, sink)
		return RequiredConfig{
			Synthesizer: f.synth,
			Ranker:      f.ranker,
			Executor:    f.exec,
			Desktop:     staticDesktop{},
		}, []Option{WithMaxIterations(5)}, nil
	}, sinks
}

func waitForCount(t *testing.T, p *Pool, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count() = %d, want %d", p.Count(), want)
}

func TestPool_SubmitRunsToCompletion(t *testing.T) {
	factory, sinks := completingFactory(t)
	sink := &recordingSink{}
	p := NewPool(factory, sink, nil)
	defer p.Close()

	id, err := p.Submit("Send Ada the report")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, ok := sinks.Load(id); !ok {
		t.Error("factory not called with the session ID")
	}
	waitForCount(t, p, 0)

	a, ok := p.Get(id)
	if !ok {
		t.Fatal("Get() did not find submitted session")
	}
	if a.Status() != models.SessionStatusCompleted {
		t.Errorf("Status() = %s, want completed", a.Status())
	}
	done := sink.ofType(events.WorkDone)
	if len(done) != 1 || done[0].SessionID != id {
		t.Errorf("work_done events = %+v", done)
	}
}

func TestPool_List(t *testing.T) {
	factory, _ := completingFactory(t)
	p := NewPool(factory, nil, nil)
	defer p.Close()

	first, _ := p.Create()
	second, _ := p.Create()

	list := p.List()
	if len(list) != 2 || list[0].ID != first.ID() || list[1].ID != second.ID() {
		t.Errorf("List() = %+v", list)
	}
	if list[0].Status != models.SessionStatusIdle {
		t.Errorf("Status = %s, want idle", list[0].Status)
	}
}

func TestPool_UnknownSession(t *testing.T) {
	factory, _ := completingFactory(t)
	p := NewPool(factory, nil, nil)
	defer p.Close()

	if err := p.Pause("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Pause() error = %v, want ErrUnknownSession", err)
	}
	if err := p.Resume("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Resume() error = %v, want ErrUnknownSession", err)
	}
}

func TestPool_FactoryError(t *testing.T) {
	boom := errors.New("no oracle configured")
	p := NewPool(func(string, events.Sink) (RequiredConfig, []Option, error) {
		return RequiredConfig{}, nil, boom
	}, nil, nil)
	defer p.Close()

	if _, err := p.Submit("goal"); !errors.Is(err, boom) {
		t.Errorf("Submit() error = %v, want factory error", err)
	}
	if len(p.List()) != 0 {
		t.Error("failed session registered")
	}
}

func TestPool_RunAll(t *testing.T) {
	factory, _ := completingFactory(t)
	p := NewPool(factory, nil, nil)
	defer p.Close()

	sessions, err := p.RunAll(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("len(sessions) = %d, want 3", len(sessions))
	}
	seen := map[string]bool{}
	for i, s := range sessions {
		if s.Status != models.SessionStatusCompleted {
			t.Errorf("session %d status = %s", i, s.Status)
		}
		seen[s.ID] = true
	}
	if len(seen) != 3 {
		t.Error("sessions share an ID")
	}
	if sessions[1].Goal != "second" {
		t.Errorf("Goal = %q, want second", sessions[1].Goal)
	}
}

func TestPool_CloseStopsPausedSessions(t *testing.T) {
	factory, _ := completingFactory(t)
	p := NewPool(func(id string, sink events.Sink) (RequiredConfig, []Option, error) {
		req, opts, err := factory(id, sink)
		ranker := req.Ranker.(*fakeRanker)
		ranker.rounds = [][]models.RankedOption{{option(models.OptionClickLink, "0", 0.9)}}
		ranker.repeat = true
		return req, append(opts, WithMaxIterations(0)), err
	}, nil, nil)

	id, err := p.Submit("goal")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := p.Get(id)
	if err := p.Pause(id); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, a, models.SessionStatusPaused)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() blocked on a paused session")
	}
	if _, err := p.Submit("late"); err == nil {
		t.Error("Submit() after Close() succeeded")
	}
}
