package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// RenderCatalog renders options as a token table grouped by window, in token
// order within each window.
func RenderCatalog(options []models.Option) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Options (%d)", len(options))))
	b.WriteString("\n")
	if len(options) == 0 {
		b.WriteString(labelStyle.Render("  (no open windows)"))
		b.WriteString("\n")
		return b.String()
	}

	var order []string
	byWindow := make(map[string][]models.Option)
	for _, o := range options {
		if _, ok := byWindow[o.WindowID]; !ok {
			order = append(order, o.WindowID)
		}
		byWindow[o.WindowID] = append(byWindow[o.WindowID], o)
	}

	tokenWidth := 1
	for _, o := range options {
		tokenWidth = max(tokenWidth, len(o.Token))
	}

	for _, w := range order {
		var rows strings.Builder
		for _, o := range byWindow[w] {
			rows.WriteString(fmt.Sprintf("%s  %s %s",
				valueStyle.Render(fmt.Sprintf("%*s", tokenWidth, o.Token)),
				kindStyle(o.Kind),
				truncate(o.Name, titleWidth)))
			if target := optionTarget(o); target != "" {
				rows.WriteString(" " + labelStyle.Render("-> "+target))
			}
			rows.WriteString("\n")
		}
		b.WriteString(labelStyle.Render("window " + w))
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.TrimRight(rows.String(), "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderRanking renders ranked options with their scores.
func RenderRanking(ranked []models.RankedOption) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Ranking"))
	b.WriteString("\n")
	if len(ranked) == 0 {
		b.WriteString(labelStyle.Render("  nothing above threshold"))
		b.WriteString("\n")
		return b.String()
	}
	for _, r := range ranked {
		b.WriteString(fmt.Sprintf("  %s %s %s %s\n",
			progressBar(int(r.Score*100+0.5), barWidth/2),
			valueStyle.Render(r.Token),
			kindStyle(r.Kind),
			truncate(r.Name, titleWidth)))
	}
	return b.String()
}

// kindStyle renders k padded to a fixed column width.
func kindStyle(k models.OptionKind) string {
	label := fmt.Sprintf("%-12s", k)
	switch k {
	case models.OptionClickLink:
		return statusRunning.Render(label)
	case models.OptionAction:
		return statusPaused.Render(label)
	case models.OptionCloseWindow:
		return statusBlocked.Render(label)
	default:
		return statusPending.Render(label)
	}
}

func optionTarget(o models.Option) string {
	switch o.Kind {
	case models.OptionClickLink:
		return o.TargetPath
	case models.OptionAction:
		if len(o.Fields) == 0 {
			return o.ActionPath
		}
		names := make([]string, len(o.Fields))
		for i, f := range o.Fields {
			names[i] = f.Name
		}
		return fmt.Sprintf("%s(%s)", o.ActionPath, strings.Join(names, ", "))
	default:
		return ""
	}
}
