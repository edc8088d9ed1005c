package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/ShayCichocki/wayfinder/internal/events"
)

// narrator prints the session's soft status lines as they happen.
type narrator struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	prefix  bool
}

func newNarrator(w io.Writer, verbose bool) *narrator {
	return &narrator{w: w, verbose: verbose}
}

// Emit implements events.Sink.
func (n *narrator) Emit(e events.Event) {
	line := n.format(e)
	if line == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.prefix && e.SessionID != "" {
		id := e.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		line = color.HiBlackString("[%s] ", id) + line
	}
	fmt.Fprintln(n.w, line)
}

func (n *narrator) format(e events.Event) string {
	switch e.Type {
	case events.Thought:
		return color.CyanString("… %s", e.Message)
	case events.PlanSynthesized:
		return fmt.Sprintf("%s %s (%v tasks, %v)", color.BlueString("◆"), e.Message, e.Data["tasks"], e.Data["outcome"])
	case events.TaskCompleted:
		return fmt.Sprintf("%s %s", color.GreenString("✓"), e.TaskTitle)
	case events.RankingDecision:
		if e.Error != "" {
			return color.YellowString("? ranking failed: %s", e.Error)
		}
		if !n.verbose {
			return ""
		}
		return fmt.Sprintf("%s %s", color.HiBlackString("≡"), e.Message)
	case events.OptionExecuted:
		if e.Error != "" {
			return fmt.Sprintf("%s %s: %s", color.RedString("✗"), e.Message, e.Error)
		}
		return fmt.Sprintf("%s %s %s", color.GreenString("→"), e.Message, color.HiBlackString("(%v)", e.Data["kind"]))
	case events.PauseState:
		if e.Error != "" {
			return color.YellowString("⏸ %s: %s", e.Message, e.Error)
		}
		return color.YellowString("⏸ %s", e.Message)
	case events.WorkDone:
		return color.New(color.FgGreen, color.Bold).Sprintf("■ done: %s", e.Message)
	case events.TaskAdded, events.TaskRemoved, events.TaskUpdated:
		if !n.verbose {
			return ""
		}
		return color.HiBlackString("  %s %s", e.Type, e.TaskTitle)
	default:
		return ""
	}
}
