// Package sandbox executes plan programs. A plan program is a Starlark file
// that builds a TaskGraph through the bindings this package predeclares; it
// has no other capabilities (no load, no I/O) and runs under a step budget
// and a wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/plan"
)

const (
	// DefaultMaxSteps bounds the Starlark execution steps of one run.
	DefaultMaxSteps = 1_000_000
	// DefaultTimeout bounds the wall-clock time of one run.
	DefaultTimeout = 5 * time.Second
	// PlanGlobal is the global a program must bind to its TaskGraph.
	PlanGlobal = "plan"
)

// fileOptions allows top-level control flow so generated programs are not
// forced into a function body.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// ExecutionError describes a plan program that failed to parse or run.
type ExecutionError struct {
	// Message is the error text.
	Message string
	// Backtrace is the Starlark call stack, empty for parse errors.
	Backtrace string
	// Err is the underlying error.
	Err error
}

func (e *ExecutionError) Error() string {
	return "plan execution: " + e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Config configures a Runner.
type Config struct {
	MaxSteps uint64
	Timeout  time.Duration
}

// Runner executes plan programs.
type Runner struct {
	maxSteps uint64
	timeout  time.Duration
	sink     events.Sink
	logger   *slog.Logger
}

// NewRunner creates a Runner. Graphs built by programs emit their mutation
// events to sink.
func NewRunner(cfg Config, sink events.Sink, logger *slog.Logger) *Runner {
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		maxSteps: cfg.MaxSteps,
		timeout:  cfg.Timeout,
		sink:     sink,
		logger:   logger,
	}
}

// Run executes source and returns the TaskGraph bound to the global "plan".
// Any failure is returned as *ExecutionError.
func (r *Runner) Run(ctx context.Context, source string) (*plan.TaskGraph, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "plan",
		Print: func(_ *starlark.Thread, msg string) {
			r.logger.Debug("plan program output", "msg", msg)
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "plan.star", source, r.predeclared())
	if err != nil {
		return nil, newExecutionError(err)
	}

	v, ok := globals[PlanGlobal]
	if !ok {
		return nil, &ExecutionError{Message: "program did not define a global named plan"}
	}
	gv, ok := v.(*graphValue)
	if !ok {
		return nil, &ExecutionError{Message: fmt.Sprintf("global plan is a %s, want TaskGraph", v.Type())}
	}
	return gv.g, nil
}

func (r *Runner) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"TaskGraph": starlark.NewBuiltin("TaskGraph", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return &graphValue{g: plan.New(plan.WithSink(r.sink))}, nil
		}),
		"TaskStatus":   taskStatusModule,
		"TaskPriority": taskPriorityModule,
	}
}

func newExecutionError(err error) *ExecutionError {
	ee := &ExecutionError{Message: err.Error(), Err: err}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		ee.Backtrace = evalErr.Backtrace()
	}
	return ee
}

// Methods returns the names of every TaskGraph and Task method a plan
// program can call, sorted.
func Methods() []string {
	seen := map[string]bool{}
	var names []string
	for _, n := range append(sortedKeys((&graphValue{}).methods()), sortedKeys((&taskValue{}).methods())...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// valueMethods are the methods of Starlark's own list, dict and string
// values. Calling them never touches the plan.
var valueMethods = map[string]bool{
	"append": true, "clear": true, "extend": true, "index": true, "insert": true,
	"pop": true, "remove": true, "get": true, "items": true, "keys": true,
	"setdefault": true, "update": true, "values": true, "capitalize": true,
	"count": true, "elems": true, "endswith": true, "find": true, "format": true,
	"join": true, "lower": true, "lstrip": true, "partition": true, "replace": true,
	"rfind": true, "rsplit": true, "rstrip": true, "split": true, "splitlines": true,
	"startswith": true, "strip": true, "title": true, "upper": true,
}

// CheckFragment parses a program and returns, in source order, every plan
// method it references that is not in allowed. Method calls on values that
// are neither plan methods nor builtin value methods are reported too, as
// are calls to getattr. A program that does not parse returns the parse
// error.
func CheckFragment(fragment string, allowed []string) ([]string, error) {
	f, err := fileOptions.Parse("fragment.star", fragment, 0)
	if err != nil {
		return nil, err
	}

	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	known := make(map[string]bool)
	for _, name := range Methods() {
		known[name] = true
	}

	var found []string
	called := make(map[*syntax.DotExpr]bool)
	syntax.Walk(f, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.CallExpr:
			switch fn := n.Fn.(type) {
			case *syntax.DotExpr:
				called[fn] = true
				name := fn.Name.Name
				if !allow[name] && (known[name] || !valueMethods[name]) {
					found = append(found, name)
				}
			case *syntax.Ident:
				if fn.Name == "getattr" {
					found = append(found, fn.Name)
				}
			}
		case *syntax.DotExpr:
			// A method taken as a value can be called later under another name.
			if !called[n] && known[n.Name.Name] && !allow[n.Name.Name] {
				found = append(found, n.Name.Name)
			}
		}
		return true
	})
	return found, nil
}

// Violations counts the names CheckFragment reports for src. A program that
// does not parse has no countable violations and returns the parse error.
func Violations(src string, allowed []string) (map[string]int, error) {
	found, err := CheckFragment(src, allowed)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(found))
	for _, name := range found {
		counts[name]++
	}
	return counts, nil
}
