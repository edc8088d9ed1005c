package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ShayCichocki/wayfinder/internal/config"
	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/state"
)

// openStore opens the session database at the configured path.
func openStore(cfg *config.Config) (*state.DB, error) {
	path := cfg.State.DBPath
	if path == "" {
		path = state.DefaultDBPath()
	}
	db, err := state.OpenMigrated(path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return db, nil
}

// storeSink records events to db without blocking the emitter. The returned
// function drains queued events and must run before db is closed.
func storeSink(db *state.DB, logger *slog.Logger) (events.Sink, func()) {
	emitter := events.NewEmitter(1024, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		emitter.Run(context.Background(), db.Sink(logger))
	}()
	return emitter, func() {
		emitter.Close()
		wg.Wait()
		if n := emitter.DroppedCount(); n > 0 {
			logger.Warn("events dropped before reaching the store", "count", n)
		}
	}
}
