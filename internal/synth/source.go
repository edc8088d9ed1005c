package synth

import (
	"strings"
)

// Marker is the comment line in a plan program where new code is inserted.
const Marker = "# generate new code here"

// Scaffold is the skeleton of an empty plan program.
const Scaffold = `def create_plan():
    plan = TaskGraph()
    # generate new code here
    return plan

plan = create_plan()
`

// DefaultSource is the program accepted when nothing else executes. It
// yields a single placeholder task.
const DefaultSource = `def create_plan():
    plan = TaskGraph()
    plan.add_task(title = "Process user query", description = "Analyze and respond to user request")
    # generate new code here
    return plan

plan = create_plan()
`

// StripFences removes a surrounding markdown code fence from oracle output.
// When the text contains a fenced block anywhere, the first block's body is
// returned.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}

	body := trimmed[start+3:]
	// Drop the info string (```python, ```starlark).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// EnsureMarker appends the marker to a fragment that lost it.
func EnsureMarker(fragment string) string {
	if strings.Contains(fragment, Marker) {
		return fragment
	}
	if strings.TrimSpace(fragment) == "" {
		return Marker
	}
	return strings.TrimRight(fragment, "\n") + "\n\n" + Marker
}

// Dedent removes the common leading whitespace of all non-blank lines.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return text
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

// Splice replaces the marker line of source with fragment, re-indenting the
// fragment to the marker's indentation. A source without a marker gets one
// before its "return plan" line, or at the end.
func Splice(source, fragment string) string {
	lines := strings.Split(source, "\n")
	idx := markerLine(lines)
	if idx < 0 {
		lines, idx = insertMarker(lines)
	}

	line := lines[idx]
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

	var spliced []string
	for _, fl := range strings.Split(Dedent(strings.Trim(fragment, "\n")), "\n") {
		if strings.TrimSpace(fl) == "" {
			spliced = append(spliced, "")
			continue
		}
		spliced = append(spliced, indent+fl)
	}

	out := make([]string, 0, len(lines)+len(spliced))
	out = append(out, lines[:idx]...)
	out = append(out, spliced...)
	out = append(out, lines[idx+1:]...)
	return strings.Join(out, "\n")
}

// Wrap places a fragment inside the scaffold.
func Wrap(fragment string) string {
	return Splice(Scaffold, EnsureMarker(fragment))
}

func markerLine(lines []string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == Marker {
			return i
		}
	}
	return -1
}

func insertMarker(lines []string) ([]string, int) {
	for i, line := range lines {
		if strings.TrimSpace(line) == "return plan" {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:i]...)
			out = append(out, indent+Marker)
			out = append(out, lines[i:]...)
			return out, i
		}
	}
	return append(lines, Marker), len(lines)
}

// scaffoldViolation reports the scaffold element a fragment reintroduces, or
// "" if it has none. Update fragments may not contain any scaffold element;
// create fragments may not define or call the plan function.
func scaffoldViolation(fragment string, update bool) string {
	for _, line := range strings.Split(fragment, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "def create_plan"):
			return "def create_plan"
		case strings.Contains(strings.ReplaceAll(trimmed, " ", ""), "=create_plan()"):
			return "plan = create_plan()"
		case update && trimmed == "return plan":
			return "return plan"
		}
	}
	return ""
}

// comments returns the comment lines of a fragment, without the marker.
func comments(fragment string) []string {
	var out []string
	for _, line := range strings.Split(fragment, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") || trimmed == Marker {
			continue
		}
		if text := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); text != "" {
			out = append(out, text)
		}
	}
	return out
}
