package state

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// RecoverInterrupted marks sessions left running by a process that exited
// without pausing them as paused, so they show up as resumable. It returns
// the sessions it changed.
func (db *DB) RecoverInterrupted(ctx context.Context) ([]models.Session, error) {
	running := models.SessionStatusRunning
	sessions, err := db.ListSessions(ctx, &running)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted sessions: %w", err)
	}

	for i := range sessions {
		sessions[i].Status = models.SessionStatusPaused
		if err := db.SaveSession(ctx, sessions[i]); err != nil {
			return nil, fmt.Errorf("recover interrupted sessions: %w", err)
		}
	}
	return sessions, nil
}
