package orchestrator

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by WaitIfPaused once the controller is stopped.
var ErrStopped = errors.New("session stopped")

// PauseController holds the pause flag of one session. The loop reads it at
// the top of every iteration, so a pause takes effect once the current
// iteration finishes.
type PauseController struct {
	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause sets the flag. It reports whether the flag changed.
func (p *PauseController) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return false
	}
	p.paused = true
	return true
}

// Resume clears the flag and wakes waiters. It reports whether the flag
// changed.
func (p *PauseController) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return false
	}
	p.paused = false
	p.cond.Broadcast()
	return true
}

// Stop wakes every waiter for good.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused returns whether the flag is set.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsStopped returns whether Stop was called.
func (p *PauseController) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WaitIfPaused blocks until the flag is cleared, the controller is stopped or
// ctx is done.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	wake := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer wake()

	for p.paused && !p.stopped {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	if p.stopped {
		return ErrStopped
	}
	return nil
}
