package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ShayCichocki/wayfinder/internal/config"
	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/executor"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
	"github.com/ShayCichocki/wayfinder/internal/orchestrator"
	"github.com/ShayCichocki/wayfinder/internal/rank"
	"github.com/ShayCichocki/wayfinder/internal/sandbox"
	"github.com/ShayCichocki/wayfinder/internal/synth"
	"github.com/ShayCichocki/wayfinder/internal/views"
)

// sessionFactory wires the components of a session. Each session gets its
// own world and token tracker; the oracle backend is shared.
type sessionFactory struct {
	cfg    *config.Config
	oracle oracle.Oracle
	site   *views.SiteMap
	store  orchestrator.SessionStore
	logger *slog.Logger

	// watchCtx and watchPath enable reloading each world when the site map
	// file changes.
	watchCtx  context.Context
	watchPath string

	mu     sync.Mutex
	worlds map[string]*views.World
}

func newSessionFactory(cfg *config.Config, o oracle.Oracle, site *views.SiteMap, logger *slog.Logger) *sessionFactory {
	return &sessionFactory{
		cfg:    cfg,
		oracle: o,
		site:   site,
		logger: logger,
		worlds: make(map[string]*views.World),
	}
}

// world returns the desktop of session id.
func (f *sessionFactory) world(id string) (*views.World, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.worlds[id]
	return w, ok
}

// build implements orchestrator.Factory.
func (f *sessionFactory) build(id string, sink events.Sink) (orchestrator.RequiredConfig, []orchestrator.Option, error) {
	cfg := f.cfg
	logger := f.logger.With("session", id)

	world := views.NewWorld(f.site)
	if f.watchPath != "" {
		if err := world.WatchFile(f.watchCtx, f.watchPath, logger); err != nil {
			return orchestrator.RequiredConfig{}, nil, fmt.Errorf("watch world: %w", err)
		}
	}

	metered := oracle.NewMetered(f.oracle, cfg.Oracle.Model, oracle.NewTokenTracker(), sink)
	runner := sandbox.NewRunner(sandbox.Config{
		MaxSteps: cfg.Sandbox.MaxSteps,
		Timeout:  cfg.Sandbox.Timeout,
	}, sink, logger)
	synthesizer := synth.New(metered, runner, synth.Config{
		MaxGenerationAttempts: cfg.Synth.MaxGenerationAttempts,
		MaxRepairAttempts:     cfg.Synth.MaxRepairAttempts,
		ArchiveDir:            cfg.Synth.ArchiveDir,
	}, sink, logger)
	ranker := rank.New(metered, rank.Config{
		TopLogprobs:     cfg.Ranker.TopLogprobs,
		LinkThreshold:   cfg.Ranker.LinkThreshold,
		ActionThreshold: cfg.Ranker.ActionThreshold,
		MaxPromptTokens: cfg.Ranker.MaxPromptTokens,
	}, sink, logger)

	opts := []orchestrator.Option{
		orchestrator.WithTokenTracker(metered.Tracker()),
		orchestrator.WithMaxEmptyRankings(cfg.Agent.MaxEmptyRankings),
		orchestrator.WithActionMinScore(cfg.Agent.ActionMinScore),
		orchestrator.WithMaxIterations(cfg.Agent.MaxIterations),
		orchestrator.WithSubtractivePass(cfg.Agent.SubtractivePass),
	}
	if f.store != nil {
		opts = append(opts, orchestrator.WithStore(f.store))
	}

	f.mu.Lock()
	f.worlds[id] = world
	f.mu.Unlock()

	return orchestrator.RequiredConfig{
		Synthesizer: synthesizer,
		Ranker:      ranker,
		Executor:    executor.New(world, metered, sink, logger),
		Desktop:     world,
	}, opts, nil
}
