// Package synth implements plan synthesis: the oracle writes plan program
// fragments, which are spliced into the session's plan program and executed
// in the sandbox to produce the current TaskGraph.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/internal/sandbox"
	"github.com/ShayCichocki/wayfinder/internal/tokens"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// ErrSynthesis indicates the oracle did not produce a usable fragment within
// the allowed attempts.
var ErrSynthesis = errors.New("plan synthesis failed")

// maxHistoryTokens bounds the event history in synthesis prompts; the oldest
// events are cut first.
const maxHistoryTokens = 4000

// Mode selects which plan operations a synthesis pass may use.
type Mode int

const (
	// Additive passes may add and refine tasks.
	Additive Mode = iota
	// Subtractive passes may only complete, remove or blank tasks.
	Subtractive
)

func (m Mode) String() string {
	if m == Subtractive {
		return "subtractive"
	}
	return "additive"
}

// readMethods may be called in either mode.
var readMethods = []string{"get_task_by_id", "get_all_tasks", "validate", "get_plan_stats"}

// Allowed lists the plan methods a mode may call. Neither mode may set a
// status or progress directly; completing a task is a subtractive
// mark_as_completed.
func (m Mode) Allowed() []string {
	if m == Subtractive {
		return append([]string{"mark_as_completed", "remove_task", "blank_task"}, readMethods...)
	}
	return append([]string{
		"add_task", "add_task_after", "add_task_at_index", "create_subtask",
		"add_prerequisite", "remove_prerequisite", "depends_on_task",
		"update_title", "update_description", "update_priority", "mark_as_started",
	}, readMethods...)
}

// Outcome records how the accepted plan was obtained.
type Outcome string

const (
	// OutcomeGenerated means freshly generated code executed cleanly.
	OutcomeGenerated Outcome = "generated"
	// OutcomeUnchanged means generation failed and the current program was kept.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeRepaired means generated code failed and a repair succeeded.
	OutcomeRepaired Outcome = "repaired"
	// OutcomeLastGood means the last known-good program was restored.
	OutcomeLastGood Outcome = "last_good"
	// OutcomeDefault means the default one-task plan was used.
	OutcomeDefault Outcome = "default"
)

var fixMessages = []string{
	"Fixing an issue in the plan...",
	"Correcting an error in the execution plan...",
	"Resolving a problem with the plan structure...",
	"Repairing the execution plan...",
	"Addressing an error in the plan code...",
}

// Runner executes a plan program.
type Runner interface {
	Run(ctx context.Context, source string) (*plan.TaskGraph, error)
}

// Input is the context of one synthesis pass.
type Input struct {
	// History is the session's event history.
	History []models.HistoryEvent
	// Windows are the currently open windows.
	Windows []models.Window
	// Source is the current plan program, empty before the first pass.
	Source string
	// LastGood is the most recent program that executed cleanly.
	LastGood string
}

// Result is the outcome of a synthesis pass. Source is the accepted program
// and must replace the session's plan program.
type Result struct {
	Graph    *plan.TaskGraph
	Source   string
	LastGood string
	Outcome  Outcome
	// Attempts counts generation calls made to the oracle.
	Attempts int
}

// Config configures a Synthesizer.
type Config struct {
	// MaxGenerationAttempts bounds oracle calls for a fragment. Default 3.
	MaxGenerationAttempts int
	// MaxRepairAttempts bounds self-repair calls after a runtime error. Default 2.
	MaxRepairAttempts int
	// ArchiveDir, when set, receives a copy of every accepted program.
	ArchiveDir string
}

// Synthesizer turns context into a TaskGraph through the oracle and sandbox.
// It holds no per-session state and may be shared between sessions.
type Synthesizer struct {
	oracle oracle.Oracle
	runner Runner
	cfg    Config
	sink   events.Sink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Synthesizer.
func New(o oracle.Oracle, r Runner, cfg Config, sink events.Sink, logger *slog.Logger) *Synthesizer {
	if cfg.MaxGenerationAttempts <= 0 {
		cfg.MaxGenerationAttempts = 3
	}
	if cfg.MaxRepairAttempts < 0 {
		cfg.MaxRepairAttempts = 0
	} else if cfg.MaxRepairAttempts == 0 {
		cfg.MaxRepairAttempts = 2
	}
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synthesizer{
		oracle: o,
		runner: r,
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Synthesize runs one pass in mode. It always yields a graph unless ctx is
// cancelled: generation failures keep the current program, execution
// failures fall back to repair, then the last good program, then the default
// plan.
func (s *Synthesizer) Synthesize(ctx context.Context, mode Mode, in Input) (*Result, error) {
	update := in.Source != ""
	base := in.Source
	if !update {
		base = Scaffold
	}

	fragment, attempts, err := s.generate(ctx, mode, in, base, update)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var candidate string
	generated := err == nil
	switch {
	case generated && update:
		candidate = Splice(in.Source, fragment)
	case generated:
		candidate = Wrap(fragment)
	case update:
		s.logger.Warn("plan generation failed, keeping current program", "mode", mode, "error", err)
		candidate = in.Source
	default:
		s.logger.Warn("plan generation failed, using default program", "mode", mode, "error", err)
		candidate = DefaultSource
	}

	res, err := s.execute(ctx, mode, candidate, in, generated)
	if err != nil {
		return nil, err
	}
	res.Attempts = attempts

	s.archive(res.Source)
	s.sink.Emit(events.Event{
		Type:    events.PlanSynthesized,
		Message: fmt.Sprintf("%s plan accepted", mode),
		Data: map[string]any{
			"mode":     mode.String(),
			"outcome":  string(res.Outcome),
			"attempts": attempts,
			"tasks":    res.Graph.Len(),
		},
	})
	return res, nil
}

// generate asks the oracle for a fragment until one passes validation.
func (s *Synthesizer) generate(ctx context.Context, mode Mode, in Input, base string, update bool) (string, int, error) {
	system, prompt := s.prompts(mode, in, base, update)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxGenerationAttempts; attempt++ {
		resp, err := s.oracle.Complete(ctx, oracle.Request{
			System:      system,
			Prompt:      prompt,
			Temperature: 0,
			Stream:      true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", attempt, ctx.Err()
			}
			lastErr = err
			s.logger.Debug("plan generation attempt failed", "attempt", attempt, "error", err)
			continue
		}

		fragment := StripFences(resp.Text)
		if v := scaffoldViolation(fragment, update); v != "" {
			lastErr = fmt.Errorf("fragment reintroduces %q", v)
			s.logger.Debug("rejected plan fragment", "attempt", attempt, "reason", lastErr)
			continue
		}
		if calls, err := sandbox.CheckFragment(Dedent(fragment), mode.Allowed()); err == nil && len(calls) > 0 {
			lastErr = fmt.Errorf("%s fragment calls %s", mode, strings.Join(calls, ", "))
			s.logger.Debug("rejected plan fragment", "attempt", attempt, "reason", lastErr)
			continue
		}

		for _, c := range comments(fragment) {
			s.thought(c)
		}
		return EnsureMarker(fragment), attempt, nil
	}
	return "", s.cfg.MaxGenerationAttempts, fmt.Errorf("%w after %d attempts: %v", ErrSynthesis, s.cfg.MaxGenerationAttempts, lastErr)
}

func (s *Synthesizer) prompts(mode Mode, in Input, base string, update bool) (string, string) {
	ctxBlock := fmt.Sprintf(contextPrompt, tokens.TruncateTail(models.FormatHistory(in.History), maxHistoryTokens), FormatViews(in.Windows), base)
	if mode == Subtractive {
		return subtractiveSystem, ctxBlock + "\n" + subtractivePrompt
	}
	task := "create a new plan"
	if update {
		task = "IMPROVE the existing plan"
	}
	return additiveSystem, ctxBlock + "\n" + fmt.Sprintf(additivePrompt, task)
}

// execute runs candidate, falling back through repair, the last good
// program and the default plan.
func (s *Synthesizer) execute(ctx context.Context, mode Mode, candidate string, in Input, generated bool) (*Result, error) {
	lastGood, base := in.LastGood, in.Source
	if base == "" {
		base = candidate
	}
	g, err := s.runner.Run(ctx, candidate)
	if err == nil {
		outcome := OutcomeGenerated
		if !generated {
			outcome = OutcomeUnchanged
		}
		return &Result{Graph: g, Source: candidate, LastGood: candidate, Outcome: outcome}, nil
	}
	s.logger.Info("plan program failed", "error", err)

	code := candidate
	for attempt := 1; attempt <= s.cfg.MaxRepairAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.thought(fixMessages[rand.IntN(len(fixMessages))])

		fixed, ferr := s.repair(ctx, code, err)
		if ferr != nil {
			s.logger.Debug("plan repair call failed", "attempt", attempt, "error", ferr)
			continue
		}
		if extra := addedViolations(mode, base, fixed); len(extra) > 0 {
			s.logger.Debug("rejected plan repair", "attempt", attempt, "calls", strings.Join(extra, ", "))
			continue
		}
		code = fixed
		if g, err = s.runner.Run(ctx, code); err == nil {
			return &Result{Graph: g, Source: code, LastGood: code, Outcome: OutcomeRepaired}, nil
		}
		s.logger.Debug("repaired plan program still fails", "attempt", attempt, "error", err)
	}

	if lastGood != "" && lastGood != candidate {
		if g, err := s.runner.Run(ctx, lastGood); err == nil {
			s.logger.Info("restored last good plan program")
			return &Result{Graph: g, Source: lastGood, LastGood: lastGood, Outcome: OutcomeLastGood}, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.Warn("using default plan")
	return &Result{Graph: s.defaultGraph(), Source: DefaultSource, LastGood: DefaultSource, Outcome: OutcomeDefault}, nil
}

// addedViolations returns the methods mode may not call that fixed calls
// more often than base. A fixed program that does not parse is reported as
// a violation of its own.
func addedViolations(mode Mode, base, fixed string) []string {
	got, err := sandbox.Violations(fixed, mode.Allowed())
	if err != nil {
		return []string{"syntax error"}
	}
	had, err := sandbox.Violations(base, mode.Allowed())
	if err != nil {
		had = nil
	}
	var extra []string
	for name, n := range got {
		if n > had[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

func (s *Synthesizer) repair(ctx context.Context, code string, runErr error) (string, error) {
	msg, backtrace := runErr.Error(), ""
	var ee *sandbox.ExecutionError
	if errors.As(runErr, &ee) {
		msg, backtrace = ee.Message, ee.Backtrace
	}

	resp, err := s.oracle.Complete(ctx, oracle.Request{
		System:      repairSystem,
		Prompt:      fmt.Sprintf(repairPrompt, msg, backtrace, code),
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	fixed := StripFences(resp.Text)
	if fixed == "" {
		return "", oracle.ErrEmptyResponse
	}
	if !strings.Contains(fixed, Marker) {
		fixed = Splice(fixed, Marker)
	}
	return fixed, nil
}

func (s *Synthesizer) defaultGraph() *plan.TaskGraph {
	g := plan.New(plan.WithSink(s.sink))
	g.AddTask("Process user query", "Analyze and respond to user request")
	return g
}

func (s *Synthesizer) thought(msg string) {
	s.sink.Emit(events.Event{Type: events.Thought, Message: msg})
}

// archive writes an accepted program to the archive directory. Failures are
// logged and otherwise ignored.
func (s *Synthesizer) archive(source string) {
	if s.cfg.ArchiveDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.ArchiveDir, 0755); err != nil {
		s.logger.Debug("create plan archive dir", "error", err)
		return
	}
	name := fmt.Sprintf("plan_%s.star", s.now().UTC().Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(s.cfg.ArchiveDir, name), []byte(source), 0644); err != nil {
		s.logger.Debug("archive plan program", "error", err)
	}
}
