package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// RenderSession renders one session record as a card.
func RenderSession(s models.Session, now time.Time) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(truncate(s.ID, 8)))
	b.WriteString("  ")
	b.WriteString(sessionStatus(s.Status))
	b.WriteString("\n")
	writeField(&b, "Goal", truncate(s.Goal, 60))
	writeField(&b, "Iterations", fmt.Sprintf("%d", s.Iterations))
	writeField(&b, "Tokens", formatTokensCompact(s.TokensUsed))
	if !s.StartedAt.IsZero() {
		writeField(&b, "Started", formatDuration(now.Sub(s.StartedAt))+" ago")
	}
	if !s.UpdatedAt.IsZero() {
		writeField(&b, "Updated", formatDuration(now.Sub(s.UpdatedAt))+" ago")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderSessions renders a one-line summary per session.
func RenderSessions(sessions []models.Session, now time.Time) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
	b.WriteString("\n")
	if len(sessions) == 0 {
		b.WriteString(labelStyle.Render("  No sessions yet. Run 'wayfinder run <goal>' to start one."))
		b.WriteString("\n")
		return b.String()
	}
	for _, s := range sessions {
		age := ""
		if !s.UpdatedAt.IsZero() {
			age = formatDuration(now.Sub(s.UpdatedAt)) + " ago"
		}
		b.WriteString(fmt.Sprintf("  %s  %s  %s  %s\n",
			valueStyle.Render(truncate(s.ID, 8)),
			sessionStatus(s.Status),
			truncate(s.Goal, 40),
			labelStyle.Render(fmt.Sprintf("%d it, %s tok, %s", s.Iterations, formatTokensCompact(s.TokensUsed), age))))
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}
