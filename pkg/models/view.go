package models

// ViewTypeDesktop marks the root view of the desktop; it has no close option.
const ViewTypeDesktop = "desktop"

// Link is a navigable target exposed by a view.
type Link struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	RouterPath  string `json:"router_path" yaml:"router_path"`
}

// Field describes one input an action accepts.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Type is the value type: string, number, integer, boolean, enum, date, ...
	// Empty means string.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Options lists the allowed values of an enum field.
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
}

// Action is an operation a view can start.
type Action struct {
	Label       string  `json:"label" yaml:"label"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	ActionPath  string  `json:"action_path" yaml:"action_path"`
	Fields      []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// View is a node of the tree a window renders.
type View struct {
	Type           string            `json:"type,omitempty" yaml:"type,omitempty"`
	Name           string            `json:"name" yaml:"name"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	RouterPath     string            `json:"router_path,omitempty" yaml:"router_path,omitempty"`
	ClickableLinks []Link            `json:"clickable_links,omitempty" yaml:"clickable_links,omitempty"`
	Actions        []Action          `json:"actions,omitempty" yaml:"actions,omitempty"`
	Children       map[string][]View `json:"children,omitempty" yaml:"children,omitempty"`
}

// Window is an open view on the desktop. ID is the window's current router path.
type Window struct {
	ID   string `json:"id"`
	View View   `json:"view"`
}

// IsDesktop reports whether the window shows the root desktop view.
func (w Window) IsDesktop() bool {
	return w.View.Type == ViewTypeDesktop
}
