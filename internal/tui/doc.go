// Package tui renders wayfinder state for the terminal.
//
// Output is static: each function returns a styled string for one snapshot
// and the caller prints it. It is used by the CLI to show:
//   - A plan as a task tree with status icons and progress bars
//   - The option catalog as a token table
//   - Stored sessions with their status and token usage
//
// Usage:
//
//	fmt.Println(tui.RenderPlan(graph.Snapshot()))
//	fmt.Println(tui.RenderCatalog(catalog.Build(windows).Options()))
//
// Styles degrade to plain text when the output is not a terminal.
package tui
