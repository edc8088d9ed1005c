package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

const sessionColumns = `id, goal, status, plan_source, last_good_source, iterations, tokens_used, started_at, updated_at`

// SaveSession inserts or replaces the record of a session.
func (db *DB) SaveSession(ctx context.Context, s models.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal = excluded.goal,
			status = excluded.status,
			plan_source = excluded.plan_source,
			last_good_source = excluded.last_good_source,
			iterations = excluded.iterations,
			tokens_used = excluded.tokens_used,
			updated_at = excluded.updated_at
	`, s.ID, s.Goal, string(s.Status), s.PlanSource, s.LastGoodSource, s.Iterations, s.TokensUsed,
		formatTime(s.StartedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID. It returns ErrNotFound when the
// session does not exist.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	db.mu.RLock()
	row := db.conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	db.mu.RUnlock()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions lists sessions most recently updated first, optionally
// filtered by status.
func (db *DB) ListSessions(ctx context.Context, status *models.SessionStatus) ([]models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT `+sessionColumns+` FROM sessions WHERE status = ? ORDER BY updated_at DESC
		`, string(*status))
	} else {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession deletes a session and its events.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE session_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                models.Session
		status           string
		started, updated string
	)
	if err := row.Scan(&s.ID, &s.Goal, &status, &s.PlanSource, &s.LastGoodSource,
		&s.Iterations, &s.TokensUsed, &started, &updated); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.StartedAt, _ = parseTime(started)
	s.UpdatedAt, _ = parseTime(updated)
	return &s, nil
}
