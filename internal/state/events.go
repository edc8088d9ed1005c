package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
)

// RecordEvent appends e to the events table. Events without a session ID are
// stored under the empty ID.
func (db *DB) RecordEvent(ctx context.Context, e events.Event) error {
	var data sql.NullString
	if len(e.Data) > 0 {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO events (session_id, type, task_id, message, error, tokens, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SessionID, string(e.Type), e.TaskID, e.Message, e.Error, e.Tokens, data, formatTime(ts))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// ListEvents returns the events of a session in emission order. A positive
// limit keeps only the most recent ones.
func (db *DB) ListEvents(ctx context.Context, sessionID string, limit int) ([]events.Event, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT session_id, type, task_id, message, error, tokens, data, created_at
		FROM events WHERE session_id = ? ORDER BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                   events.Event
			typ, created        string
			taskID, msg, errStr sql.NullString
			data                sql.NullString
		)
		if err := rows.Scan(&e.SessionID, &typ, &taskID, &msg, &errStr, &e.Tokens, &data, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = events.Type(typ)
		e.TaskID = taskID.String
		e.Message = msg.String
		e.Error = errStr.String
		e.Timestamp, _ = parseTime(created)
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Sink returns an events.Sink that records every event. Writes are
// synchronous; put the sink behind an events.Emitter on hot paths.
func (db *DB) Sink(logger *slog.Logger) events.Sink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return events.SinkFunc(func(e events.Event) {
		if err := db.RecordEvent(context.Background(), e); err != nil {
			logger.Warn("dropping event", "type", e.Type, "session", e.SessionID, "error", err)
		}
	})
}
