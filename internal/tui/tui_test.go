package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

func TestRenderPlan(t *testing.T) {
	g := plan.New()
	report := g.AddTask("Send report", "Mail the report to Ada")
	sub, err := g.CreateSubtask(report.ID, "Attach figures", "")
	if err != nil {
		t.Fatal(err)
	}
	call := g.AddTask("Call Bob", "")
	if err := g.DependsOnTask(call.ID, report.ID); err != nil {
		t.Fatal(err)
	}
	if err := g.UpdateProgress(report.ID, 40); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPrerequisite(report.ID, "Report drafted", ""); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkAsCompleted(sub.ID); err != nil {
		t.Fatal(err)
	}

	out := RenderPlan(g.Snapshot())
	for _, want := range []string{
		"Send report",
		"|-- " + iconDone + " Attach figures",
		"needs: Report drafted",
		"<-- Send report",
		"40%",
		"Tasks: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderPlan() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "✗") {
		t.Errorf("valid plan rendered with issues:\n%s", out)
	}
}

func TestRenderPlan_Empty(t *testing.T) {
	out := RenderPlan(plan.New().Snapshot())
	if !strings.Contains(out, "(no tasks)") || !strings.Contains(out, "Plan has no tasks") {
		t.Errorf("RenderPlan(empty) =\n%s", out)
	}
}

func TestRenderCatalog(t *testing.T) {
	opts := []models.Option{
		{Token: "0", Kind: models.OptionClickLink, WindowID: "/", Name: "Mail", TargetPath: "/apps/mail"},
		{Token: "1", Kind: models.OptionAction, WindowID: "/apps/mail", Name: "Send", ActionPath: "send",
			Fields: []models.Field{{Name: "to"}, {Name: "body"}}},
		{Token: "2", Kind: models.OptionCloseWindow, WindowID: "/apps/mail", Name: "Close Mail"},
		{Token: "3", Kind: models.OptionIdle, WindowID: "/", Name: "Idle"},
	}
	out := RenderCatalog(opts)
	for _, want := range []string{"Options (4)", "window /apps/mail", "-> /apps/mail", "send(to, body)", "close_window", "idle"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderCatalog() missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "window /") != 2 {
		t.Errorf("expected two window groups:\n%s", out)
	}
}

func TestRenderRanking(t *testing.T) {
	out := RenderRanking([]models.RankedOption{
		{Option: models.Option{Token: "4", Kind: models.OptionAction, Name: "Send"}, Score: 0.8},
	})
	if !strings.Contains(out, "80%") || !strings.Contains(out, "Send") {
		t.Errorf("RenderRanking() =\n%s", out)
	}
	if out := RenderRanking(nil); !strings.Contains(out, "nothing above threshold") {
		t.Errorf("RenderRanking(nil) =\n%s", out)
	}
}

func TestRenderSessions(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := []models.Session{
		{ID: "7f3c9a10-aaaa", Goal: "Send Ada the report", Status: models.SessionStatusPaused, Iterations: 4, TokensUsed: 12500, UpdatedAt: now.Add(-90 * time.Second)},
	}
	out := RenderSessions(sessions, now)
	for _, want := range []string{"Sessions (1)", "7f3c9a10", "paused", "12.5k tok", "1m30s ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderSessions() missing %q:\n%s", want, out)
		}
	}

	card := RenderSession(sessions[0], now)
	if !strings.Contains(card, "Send Ada the report") || !strings.Contains(card, "Iterations: 4") {
		t.Errorf("RenderSession() =\n%s", card)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, "░░░░░░░░░░   0%"},
		{50, "█████░░░░░  50%"},
		{150, "██████████ 100%"},
		{-5, "░░░░░░░░░░   0%"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.pct, 10); got != tt.want {
			t.Errorf("progressBar(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Send the quarterly report", 10); got != "Send th..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("Café", 10); got != "Café" {
		t.Errorf("truncate() = %q", got)
	}
}
