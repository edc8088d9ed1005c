package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatHistory renders events one per line as
// "[date] TYPE - Application: content". Content holding only a text entry is
// printed as that text, anything else as JSON.
func FormatHistory(history []HistoryEvent) string {
	var sb strings.Builder
	for _, e := range history {
		app := e.Application
		if app == "" {
			app = "System"
		}
		content := "{}"
		if text, ok := e.Content["text"].(string); ok && len(e.Content) == 1 {
			content = text
		} else if data, err := json.Marshal(e.Content); err == nil && len(e.Content) > 0 {
			content = string(data)
		}
		fmt.Fprintf(&sb, "[%s] %s - %s: %s\n", e.Date.UTC().Format("2006-01-02 15:04:05"), strings.ToUpper(string(e.Type)), app, content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
