package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/orchestrator"
	"github.com/ShayCichocki/wayfinder/internal/tui"
	"github.com/ShayCichocki/wayfinder/internal/views"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

var (
	runWorld         string
	runMaxIterations int
	runSubtractive   bool
	runVerbose       bool
	runNoStore       bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal> [goal...]",
	Short: "Work toward one or more goals on a world",
	Long: `Run an agent session per goal against the desktop described by --world.

Each session plans, ranks the reachable options and executes the best of
them until the plan is complete. Several goals run concurrently, each in
its own copy of the world.

Press Ctrl+C to interrupt: running sessions are paused and saved.

Examples:
  wayfinder run "Email Ada the quarterly report" --world worlds/office.yaml
  wayfinder run "Reply to Bob" "Book Friday lunch" --world worlds/office.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoals,
}

func init() {
	runCmd.Flags().StringVar(&runWorld, "world", "", "Site map YAML describing the desktop (required)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override agent.max_iterations (0 keeps the config value)")
	runCmd.Flags().BoolVar(&runSubtractive, "subtractive", false, "Run a subtractive plan pass after each execution")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Narrate rankings and every plan mutation")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not record sessions in the session store")
	_ = runCmd.MarkFlagRequired("world")
}

func runGoals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runMaxIterations > 0 {
		cfg.Agent.MaxIterations = runMaxIterations
	}
	if runSubtractive {
		cfg.Agent.SubtractivePass = true
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	site, err := views.LoadSiteMap(runWorld)
	if err != nil {
		return err
	}
	o, err := newOracle(cfg, logger.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	narr := newNarrator(out, runVerbose)
	narr.prefix = len(args) > 1
	sinks := []events.Sink{narr, events.NewLogSink(logger.Logger)}

	factory := newSessionFactory(cfg, o, site, logger.Logger)
	if !runNoStore {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		sink, drain := storeSink(db, logger.Logger)
		defer drain()
		sinks = append(sinks, sink)
		factory.store = db
	}

	pool := orchestrator.NewPool(factory.build, events.Fanout(sinks...), logger.Logger)
	defer pool.Close()

	sessions, runErr := pool.RunAll(ctx, args)
	printSummary(out, pool, sessions)

	if ctx.Err() != nil {
		fmt.Fprintln(out, color.YellowString("Interrupted. Unfinished sessions are paused."))
		return nil
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func printSummary(w io.Writer, pool *orchestrator.Pool, sessions []models.Session) {
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintln(w)
		if a, ok := pool.Get(s.ID); ok {
			if g := a.Graph(); g != nil {
				fmt.Fprintln(w, tui.RenderPlan(g.Snapshot()))
			}
		}
		fmt.Fprintln(w, tui.RenderSession(s, now))
	}
}
