package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/orchestrator"
	"github.com/ShayCichocki/wayfinder/internal/server"
	"github.com/ShayCichocki/wayfinder/internal/views"
)

var (
	serveWorld     string
	serveAddr      string
	serveWatch     bool
	serveRetention time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host sessions behind the HTTP control API",
	Long: `Start the control server. Sessions are created with POST /v1/sessions and
run in the background, each against its own copy of the world.

Endpoints:
  POST /v1/sessions              {"goal": "..."}
  GET  /v1/sessions              live sessions (?stored=true for history)
  GET  /v1/sessions/:id          session record
  GET  /v1/sessions/:id/plan     current plan
  GET  /v1/sessions/:id/events   recorded events
  POST /v1/sessions/:id/pause
  POST /v1/sessions/:id/resume
  GET  /healthz
  GET  /metrics

Sessions left running by a previous process are marked paused on startup.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveWorld, "world", "", "Site map YAML describing the desktop (required)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload worlds when the site map file changes")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", 0, "Purge stored sessions idle for longer than this on startup (0 keeps all)")
	_ = serveCmd.MarkFlagRequired("world")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	site, err := views.LoadSiteMap(serveWorld)
	if err != nil {
		return err
	}
	o, err := newOracle(cfg, logger.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	recovered, err := db.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover sessions: %w", err)
	}
	if len(recovered) > 0 {
		logger.Info("marked interrupted sessions as paused", "count", len(recovered))
	}
	if serveRetention > 0 {
		n, err := db.PurgeOldSessions(serveRetention)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		logger.Info("purged old sessions", "count", n, "older_than", serveRetention)
	}

	storeEvents, drain := storeSink(db, logger.Logger)
	defer drain()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := events.NewMetrics(reg)

	factory := newSessionFactory(cfg, o, site, logger.Logger)
	factory.store = db
	if serveWatch {
		factory.watchCtx = ctx
		factory.watchPath = serveWorld
	}

	pool := orchestrator.NewPool(factory.build, events.Fanout(storeEvents, metrics, events.NewLogSink(logger.Logger)), logger.Logger)
	defer pool.Close()

	srv := server.New(pool,
		server.WithStore(db),
		server.WithGatherer(reg),
		server.WithLogger(logger.Logger),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wayfinder control API on http://%s\n", cfg.Server.Addr)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
