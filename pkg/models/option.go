package models

// OptionKind identifies what executing an option does.
type OptionKind string

const (
	OptionClickLink   OptionKind = "click_link"
	OptionAction      OptionKind = "action"
	OptionCloseWindow OptionKind = "close_window"
	OptionIdle        OptionKind = "idle"
)

// Valid returns true if the kind is a known value.
func (k OptionKind) Valid() bool {
	switch k {
	case OptionClickLink, OptionAction, OptionCloseWindow, OptionIdle:
		return true
	default:
		return false
	}
}

// Option is one executable choice indexed by a catalog token.
type Option struct {
	// Token is unique within one catalog build.
	Token string     `json:"token"`
	Kind  OptionKind `json:"kind"`
	// WindowID is the window the option belongs to.
	WindowID    string `json:"window_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// TargetPath is set for click_link options.
	TargetPath string `json:"target_path,omitempty"`
	// ActionPath and Fields are set for action options.
	ActionPath string  `json:"action_path,omitempty"`
	Fields     []Field `json:"fields,omitempty"`
}

// RankedOption is an option with the oracle's probability for its token.
type RankedOption struct {
	Option
	Score float64 `json:"score"`
}
