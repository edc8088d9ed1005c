package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/config"
	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/logging"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
	"github.com/ShayCichocki/wayfinder/internal/synth"
	"github.com/ShayCichocki/wayfinder/internal/views"
)

const officeWorld = "../../worlds/office.yaml"

func init() {
	color.NoColor = true
}

// isolateConfig points config discovery at an empty directory.
func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	cfgFile = ""
	logLevel = ""
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func TestNarrator_Format(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		event   events.Event
		want    string
	}{
		{"thought", false, events.Event{Type: events.Thought, Message: "opening mail"}, "… opening mail"},
		{"completed", false, events.Event{Type: events.TaskCompleted, TaskTitle: "Send report"}, "✓ Send report"},
		{"executed", false, events.Event{Type: events.OptionExecuted, Message: "Inbox", Data: map[string]any{"kind": "link"}}, "→ Inbox (link)"},
		{"failed", false, events.Event{Type: events.OptionExecuted, Message: "Compose", Error: "missing to"}, "✗ Compose: missing to"},
		{"done", false, events.Event{Type: events.WorkDone, Message: "plan complete"}, "■ done: plan complete"},
		{"task added quiet", false, events.Event{Type: events.TaskAdded, TaskTitle: "x"}, ""},
		{"task added verbose", true, events.Event{Type: events.TaskAdded, TaskTitle: "x"}, "  task_added x"},
		{"ranking quiet", false, events.Event{Type: events.RankingDecision, Message: "2 options"}, ""},
		{"ranking error", false, events.Event{Type: events.RankingDecision, Error: "timeout"}, "? ranking failed: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNarrator(&bytes.Buffer{}, tt.verbose)
			if got := n.format(tt.event); got != tt.want {
				t.Errorf("format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNarrator_Prefix(t *testing.T) {
	var buf bytes.Buffer
	n := newNarrator(&buf, false)
	n.prefix = true
	n.Emit(events.Event{Type: events.Thought, SessionID: "0123456789abcdef", Message: "hi"})
	n.Emit(events.Event{Type: events.TaskAdded, SessionID: "0123456789abcdef"})

	got := buf.String()
	if got != "[01234567] … hi\n" {
		t.Errorf("output = %q", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]synth.Mode{
		"additive":    synth.Additive,
		"ADD":         synth.Additive,
		"subtractive": synth.Subtractive,
		"sub":         synth.Subtractive,
	} {
		got, err := parseMode(in)
		if err != nil || got != want {
			t.Errorf("parseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseMode("sideways"); err == nil {
		t.Error("parseMode(sideways) error = nil")
	}
}

func TestProviderEnv(t *testing.T) {
	if got := providerEnv("anthropic"); got != "ANTHROPIC_API_KEY" {
		t.Errorf("providerEnv(anthropic) = %q", got)
	}
	if got := providerEnv("openai"); got != "OPENAI_API_KEY" {
		t.Errorf("providerEnv(openai) = %q", got)
	}
}

func TestGetConfigValue(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-1234567890abcdef")
	cfg := config.Default()
	cfg.Oracle.Provider = "openai"

	got, err := getConfigValue(cfg, "oracle.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "1234567890") || !strings.Contains(got, "environment") {
		t.Errorf("api key display = %q, want masked with source", got)
	}
	if _, err := getConfigValue(cfg, "oracle.nope"); err == nil {
		t.Error("unknown key error = nil")
	}

	var buf bytes.Buffer
	displayAllConfig(&buf, cfg)
	if lines := strings.Count(buf.String(), "\n"); lines != len(configKeys) {
		t.Errorf("displayAllConfig printed %d lines, want %d", lines, len(configKeys))
	}
}

func TestSessionFactory_Build(t *testing.T) {
	site, err := views.LoadSiteMap(officeWorld)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	f := newSessionFactory(cfg, oracle.NewScripted(), site, logging.Discard())

	required, opts, err := f.build("s1", events.Discard)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if required.Synthesizer == nil || required.Ranker == nil || required.Executor == nil || required.Desktop == nil {
		t.Errorf("required config has nil members: %+v", required)
	}
	if len(opts) != 5 {
		t.Errorf("options = %d, want 5 without a store", len(opts))
	}

	w, ok := f.world("s1")
	if !ok {
		t.Fatal("world(s1) not registered")
	}
	if _, other := f.world("s2"); other {
		t.Error("world(s2) registered before build")
	}
	windows, err := w.Windows(context.Background())
	if err != nil || len(windows) != 1 {
		t.Errorf("fresh world windows = %d, %v; want desktop only", len(windows), err)
	}
}

func TestPlanCheck(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()

	fragment := filepath.Join(dir, "frag.star")
	if err := os.WriteFile(fragment, []byte(`plan.add_task(title = "Open mail", description = "Start in the inbox")`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("fragment", func(t *testing.T) {
		planFragment, planMode, planJSON = true, "additive", false
		t.Cleanup(func() { planFragment, planMode = false, "" })
		cmd, out := newTestCmd()
		if err := runPlanCheck(cmd, []string{fragment}); err != nil {
			t.Fatalf("runPlanCheck() error = %v\n%s", err, out)
		}
		if !strings.Contains(out.String(), "Open mail") {
			t.Errorf("output missing task:\n%s", out)
		}
	})

	t.Run("forbidden in subtractive mode", func(t *testing.T) {
		planFragment, planMode = true, "subtractive"
		t.Cleanup(func() { planFragment, planMode = false, "" })
		cmd, out := newTestCmd()
		if err := runPlanCheck(cmd, []string{fragment}); err == nil {
			t.Fatal("runPlanCheck() error = nil, want forbidden method")
		}
		if !strings.Contains(out.String(), "add_task") {
			t.Errorf("output = %q, want add_task violation", out)
		}
	})

	t.Run("runtime error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.star")
		if err := os.WriteFile(bad, []byte("plan = undefined_name\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cmd, out := newTestCmd()
		if err := runPlanCheck(cmd, []string{bad}); err == nil {
			t.Fatal("runPlanCheck() error = nil")
		}
		if !strings.Contains(out.String(), "undefined_name") {
			t.Errorf("output = %q, want the failing name", out)
		}
	})

	t.Run("empty plan is invalid", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.star")
		if err := os.WriteFile(empty, []byte(synth.Scaffold), 0o644); err != nil {
			t.Fatal(err)
		}
		planJSON = true
		t.Cleanup(func() { planJSON = false })
		cmd, out := newTestCmd()
		if err := runPlanCheck(cmd, []string{empty}); err == nil {
			t.Fatal("runPlanCheck() error = nil, want validation failure")
		}
		if !strings.Contains(out.String(), "Plan has no tasks") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestCatalogCommand(t *testing.T) {
	catalogWorld = officeWorld
	t.Cleanup(func() { catalogWorld, catalogOpen, catalogRaw = "", nil, false })

	cmd, out := newTestCmd()
	if err := runCatalog(cmd, nil); err != nil {
		t.Fatalf("runCatalog() error = %v", err)
	}
	if !strings.Contains(out.String(), "mail") {
		t.Errorf("desktop catalog missing mail app:\n%s", out)
	}

	catalogOpen = []string{"mail"}
	catalogRaw = true
	cmd, out = newTestCmd()
	if err := runCatalog(cmd, nil); err != nil {
		t.Fatalf("runCatalog(--open mail) error = %v", err)
	}
	if !strings.Contains(out.String(), "Inbox") {
		t.Errorf("mail catalog missing Inbox:\n%s", out)
	}

	catalogOpen = []string{"nope"}
	cmd, _ = newTestCmd()
	if err := runCatalog(cmd, nil); err == nil {
		t.Error("runCatalog(--open nope) error = nil")
	}
}

func TestSessionsCommands_EmptyStore(t *testing.T) {
	isolateConfig(t)
	t.Setenv("WAYFINDER_STATE_DB_PATH", filepath.Join(t.TempDir(), "state.db"))

	cmd, out := newTestCmd()
	if err := runSessionsList(cmd, nil); err != nil {
		t.Fatalf("runSessionsList() error = %v", err)
	}
	if !strings.Contains(out.String(), "No sessions") {
		t.Errorf("output = %q", out)
	}

	cmd, _ = newTestCmd()
	if err := runSessionsShow(cmd, []string{"missing"}); err == nil {
		t.Error("runSessionsShow(missing) error = nil")
	}
	cmd, _ = newTestCmd()
	if err := runSessionsDelete(cmd, []string{"missing"}); err == nil {
		t.Error("runSessionsDelete(missing) error = nil")
	}
}
