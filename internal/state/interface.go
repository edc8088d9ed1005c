package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// SessionStore handles session-related persistence operations.
type SessionStore interface {
	SaveSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, status *models.SessionStatus) ([]models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// EventStore handles event-related persistence operations.
type EventStore interface {
	RecordEvent(ctx context.Context, e events.Event) error
	ListEvents(ctx context.Context, sessionID string, limit int) ([]events.Event, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// It composes focused sub-interfaces so callers can depend on only what
// they use.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ EventStore   = (*DB)(nil)
)
