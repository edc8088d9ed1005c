package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Emitter is an asynchronous Sink. Emit enqueues onto a bounded buffer and
// drops the event when the buffer is full; Run delivers queued events to a
// downstream sink on its own goroutine.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *slog.Logger

	// mu guards closed. Emit holds the read lock across its send so Close
	// cannot close the channel underneath it.
	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates a new Emitter with the given buffer size.
func NewEmitter(bufferSize int, logger *slog.Logger) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full or the emitter is closed.
func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.droppedCount.Add(1)
		return
	}

	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			e.logger.Warn("event buffer full, dropped event", "total_dropped", count, "type", event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of queued events.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Run forwards queued events to next until ctx is done or the emitter is
// closed. Remaining buffered events are flushed after Close.
func (e *Emitter) Run(ctx context.Context, next Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			next.Emit(ev)
		}
	}
}

// Close closes the events channel. It is safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
