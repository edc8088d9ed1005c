package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

const (
	titleWidth = 48
	barWidth   = 20
)

// RenderPlan renders a plan snapshot as a task tree followed by its stats
// and any validation issues.
func RenderPlan(s plan.Snapshot) string {
	titles := make(map[string]string)
	var index func(nodes []plan.TaskNode)
	index = func(nodes []plan.TaskNode) {
		for _, n := range nodes {
			titles[n.ID] = n.Title
			index(n.Subtasks)
		}
	}
	index(s.Tasks)

	var b strings.Builder
	b.WriteString(headerStyle.Render("Plan"))
	b.WriteString("\n")
	if len(s.Tasks) == 0 {
		b.WriteString(labelStyle.Render("  (no tasks)"))
		b.WriteString("\n")
	}
	for _, n := range s.Tasks {
		writeTask(&b, n, titles, 0)
	}

	b.WriteString("\n")
	b.WriteString(renderStats(s.Stats))

	if !s.Validation.Valid {
		b.WriteString("\n")
		for _, issue := range s.Validation.Issues {
			b.WriteString(statusBlocked.Render("  ✗ " + issue))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeTask(b *strings.Builder, n plan.TaskNode, titles map[string]string, depth int) {
	indent := strings.Repeat("  ", depth+1)
	prefix := ""
	if depth > 0 {
		prefix = labelStyle.Render("|-- ")
	}

	line := fmt.Sprintf("%s%s%s %s", indent, prefix, taskIcon(n.Status), valueStyle.Render(truncate(n.Title, titleWidth)))
	if n.Priority == models.TaskPriorityHigh || n.Priority == models.TaskPriorityCritical {
		line += " " + statusPaused.Render("!"+string(n.Priority))
	}
	if n.Status == models.TaskStatusInProgress {
		line += "  " + progressBar(n.ProgressPercentage, barWidth/2)
	}
	if n.DependsOn != "" {
		dep, ok := titles[n.DependsOn]
		if !ok {
			dep = "?" + truncate(n.DependsOn, 8)
		}
		line += " " + labelStyle.Render("<-- "+truncate(dep, 24))
	}
	b.WriteString(line)
	b.WriteString("\n")

	for _, p := range n.Prerequisites {
		b.WriteString(indent)
		b.WriteString(labelStyle.Render("    needs: " + p.Name))
		b.WriteString("\n")
	}
	for _, sub := range n.Subtasks {
		writeTask(b, sub, titles, depth+1)
	}
}

func renderStats(s plan.Stats) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Tasks: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", s.TotalTasks)))
	b.WriteString(labelStyle.Render(fmt.Sprintf("  done %d  active %d  blocked %d  open %d",
		s.CompletedTasks, s.InProgressTasks, s.BlockedTasks, s.NotStartedTasks)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Progress: "))
	b.WriteString(progressBar(s.TotalProgressPercentage, barWidth))
	b.WriteString("\n")
	return b.String()
}
