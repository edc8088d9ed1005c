package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// Status icons.
const (
	iconRunning = "[●]"
	iconWaiting = "[◐]"
	iconDone    = "[✓]"
	iconPaused  = "[◌]"
	iconPending = "[○]"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	statusRunning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")) // Green

	statusDone = lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")) // Dark green

	statusBlocked = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	statusPending = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	statusPaused = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	progressFull = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34"))

	progressEmpty = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// taskIcon returns the styled icon for a task status.
func taskIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return statusDone.Render(iconDone)
	case models.TaskStatusInProgress:
		return statusRunning.Render(iconRunning)
	case models.TaskStatusBlocked:
		return statusBlocked.Render(iconWaiting)
	default:
		return statusPending.Render(iconPending)
	}
}

// sessionStatus returns the styled icon and label for a session status.
func sessionStatus(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusRunning:
		return statusRunning.Render(iconRunning + " running")
	case models.SessionStatusPaused:
		return statusPaused.Render(iconPaused + " paused")
	case models.SessionStatusCompleted:
		return statusDone.Render(iconDone + " completed")
	default:
		return statusPending.Render(iconPending + " " + string(status))
	}
}

// progressBar renders pct as a bar of width cells followed by the percentage.
func progressBar(pct, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := pct * width / 100
	bar := progressFull.Render(strings.Repeat("█", filled)) +
		progressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatTokensCompact(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	if tokens < 1000000 {
		return fmt.Sprintf("%.1fk", float64(tokens)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(tokens)/1000000)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
