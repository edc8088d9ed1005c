package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// ErrUnknownSession is returned for IDs the pool does not host.
var ErrUnknownSession = errors.New("unknown session")

// Factory builds the collaborators of a new session. sink is scoped to the
// session and should be handed to every component that emits events so they
// carry its ID. The returned options are applied after the pool's own.
type Factory func(id string, sink events.Sink) (RequiredConfig, []Option, error)

// Pool hosts many independent sessions. Sessions share no mutable state.
type Pool struct {
	factory Factory
	sink    events.Sink
	logger  *slog.Logger

	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a Pool. Every session's events are forwarded to sink.
func NewPool(factory Factory, sink events.Sink, logger *slog.Logger) *Pool {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		factory: factory,
		sink:    sink,
		logger:  logger,
		agents:  make(map[string]*Agent),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Create builds an idle session without starting it.
func (p *Pool) Create() (*Agent, error) {
	id := uuid.NewString()
	sink := events.WithSession(id, p.sink)
	req, opts, err := p.factory(id, sink)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	all := append([]Option{WithID(id), WithSink(p.sink), WithLogger(p.logger)}, opts...)
	a := New(req, all...)

	p.mu.Lock()
	p.agents[id] = a
	p.order = append(p.order, id)
	p.mu.Unlock()
	return a, nil
}

// Submit creates a session for goal and runs it in the background until it
// completes or the pool is closed. Paused sessions wait for Resume.
// Returns the session ID.
func (p *Pool) Submit(goal string) (string, error) {
	if p.ctx.Err() != nil {
		return "", fmt.Errorf("submit: %w", p.ctx.Err())
	}
	a, err := p.Create()
	if err != nil {
		return "", err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := a.Run(p.ctx, goal); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("session failed", "session", a.ID(), "error", err)
		}
	}()
	return a.ID(), nil
}

// RunAll runs one session per goal concurrently and waits for all of them to
// complete or pause. The first error cancels the others.
func (p *Pool) RunAll(ctx context.Context, goals []string) ([]models.Session, error) {
	agents := make([]*Agent, len(goals))
	for i := range goals {
		a, err := p.Create()
		if err != nil {
			return nil, err
		}
		agents[i] = a
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, goal := range goals {
		a := agents[i]
		g.Go(func() error {
			if err := a.Start(gctx, goal); err != nil {
				return fmt.Errorf("session %s: %w", a.ID(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	sessions := make([]models.Session, len(agents))
	for i, a := range agents {
		sessions[i] = a.Snapshot()
	}
	return sessions, err
}

// Get returns the session with id.
func (p *Pool) Get(id string) (*Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	return a, ok
}

// List returns the records of all hosted sessions in creation order.
func (p *Pool) List() []models.Session {
	p.mu.RLock()
	agents := make([]*Agent, 0, len(p.order))
	for _, id := range p.order {
		agents = append(agents, p.agents[id])
	}
	p.mu.RUnlock()

	out := make([]models.Session, len(agents))
	for i, a := range agents {
		out[i] = a.Snapshot()
	}
	return out
}

// Pause pauses the session with id.
func (p *Pool) Pause(id string) error {
	a, ok := p.Get(id)
	if !ok {
		return fmt.Errorf("pause %s: %w", id, ErrUnknownSession)
	}
	return a.Pause()
}

// Resume lets a paused session continue on its background goroutine.
func (p *Pool) Resume(id string) error {
	a, ok := p.Get(id)
	if !ok {
		return fmt.Errorf("resume %s: %w", id, ErrUnknownSession)
	}
	return a.Unpause()
}

// Count returns the number of sessions that have not completed.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, a := range p.agents {
		if a.Status() != models.SessionStatusCompleted {
			n++
		}
	}
	return n
}

// Close stops every session and waits for background loops to return.
func (p *Pool) Close() {
	p.cancel()
	p.mu.RLock()
	for _, a := range p.agents {
		a.Stop()
	}
	p.mu.RUnlock()
	p.wg.Wait()
}
