// Package catalog indexes the options the open windows expose. Every link and
// action gets a short token the oracle can answer with; tokens are valid for
// a single ranking pass only.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

const (
	closeDescription = "Close this window and remove it from the screen."
	idleName         = "Do nothing / Stay idle"
	idleDescription  = "Choose this if no other action seems appropriate or necessary right now."
)

// LinkNode is a link in the projection tree.
type LinkNode struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Alias         string `json:"alias"`
	AlreadyOpened bool   `json:"is_already_opened,omitempty"`
}

// ActionNode is an action in the projection tree. Synthesized close_window
// and idle options appear here too.
type ActionNode struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Alias       string `json:"alias"`
}

// Node is a view in the projection tree: what the oracle sees of it.
type Node struct {
	WindowID    string       `json:"window_id,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Links       []LinkNode   `json:"links"`
	Actions     []ActionNode `json:"actions"`
	Components  []*Node      `json:"components,omitempty"`
}

// Catalog is the token index over one snapshot of the open windows.
type Catalog struct {
	options []models.Option
	byToken map[string]models.Option
	roots   []*Node
	idle    string
}

// Build walks windows depth-first and assigns tokens "0", "1", ... to every
// link and then every action of a view before descending into its children
// in sorted key order. It then adds one close_window option per window that
// is not the desktop, and one idle option if any window is open.
func Build(windows []models.Window) *Catalog {
	b := &builder{
		c:    &Catalog{byToken: make(map[string]models.Option)},
		open: make(map[string]bool, len(windows)),
	}
	for _, w := range windows {
		b.open[w.ID] = true
	}

	for _, w := range windows {
		root := b.walk(w.ID, w.View)
		root.WindowID = w.ID
		b.c.roots = append(b.c.roots, root)
	}

	for i, w := range windows {
		if w.IsDesktop() {
			continue
		}
		label := fmt.Sprintf("Close %q window", w.View.Name)
		tok := b.add(models.Option{
			Kind:        models.OptionCloseWindow,
			WindowID:    w.ID,
			Name:        label,
			Description: closeDescription,
		})
		root := b.c.roots[i]
		root.Actions = append(root.Actions, ActionNode{Label: label, Description: closeDescription, Alias: tok})
	}

	if len(windows) > 0 {
		tok := b.add(models.Option{
			Kind:        models.OptionIdle,
			WindowID:    windows[0].ID,
			Name:        idleName,
			Description: idleDescription,
		})
		b.c.idle = tok
		root := b.c.roots[0]
		root.Actions = append(root.Actions, ActionNode{Label: idleName, Description: idleDescription, Alias: tok})
	}

	return b.c
}

type builder struct {
	c    *Catalog
	open map[string]bool
	next int
}

func (b *builder) add(opt models.Option) string {
	opt.Token = strconv.Itoa(b.next)
	b.next++
	b.c.options = append(b.c.options, opt)
	b.c.byToken[opt.Token] = opt
	return opt.Token
}

func (b *builder) walk(windowID string, v models.View) *Node {
	n := &Node{
		Name:        v.Name,
		Description: v.Description,
		Links:       make([]LinkNode, 0, len(v.ClickableLinks)),
		Actions:     make([]ActionNode, 0, len(v.Actions)),
	}

	for _, l := range v.ClickableLinks {
		tok := b.add(models.Option{
			Kind:        models.OptionClickLink,
			WindowID:    windowID,
			Name:        l.Name,
			Description: l.Description,
			TargetPath:  l.RouterPath,
		})
		n.Links = append(n.Links, LinkNode{
			Name:          l.Name,
			Description:   l.Description,
			Alias:         tok,
			AlreadyOpened: b.open[l.RouterPath],
		})
	}
	for _, a := range v.Actions {
		tok := b.add(models.Option{
			Kind:        models.OptionAction,
			WindowID:    windowID,
			Name:        a.Label,
			Description: a.Description,
			ActionPath:  a.ActionPath,
			Fields:      a.Fields,
		})
		n.Actions = append(n.Actions, ActionNode{Label: a.Label, Description: a.Description, Alias: tok})
	}

	keys := make([]string, 0, len(v.Children))
	for k := range v.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, child := range v.Children[k] {
			n.Components = append(n.Components, b.walk(windowID, child))
		}
	}
	return n
}

// Lookup resolves a token by searching the projection tree and confirming
// the match against the token dictionary.
func (c *Catalog) Lookup(token string) (models.Option, bool) {
	if token == "" {
		return models.Option{}, false
	}
	for _, root := range c.roots {
		if findAlias(root, token) {
			opt, ok := c.byToken[token]
			return opt, ok
		}
	}
	return models.Option{}, false
}

func findAlias(n *Node, token string) bool {
	for _, a := range n.Actions {
		if a.Alias == token {
			return true
		}
	}
	for _, l := range n.Links {
		if l.Alias == token {
			return true
		}
	}
	for _, child := range n.Components {
		if findAlias(child, token) {
			return true
		}
	}
	return false
}

// Projection returns the name/description/alias tree, one root per window.
func (c *Catalog) Projection() []*Node {
	return c.roots
}

// Options returns every option in token order.
func (c *Catalog) Options() []models.Option {
	out := make([]models.Option, len(c.options))
	copy(out, c.options)
	return out
}

// IdleToken returns the idle option's token, or "" when no window is open.
func (c *Catalog) IdleToken() string {
	return c.idle
}

// Len returns the number of options.
func (c *Catalog) Len() int {
	return len(c.options)
}

// Render returns the projection as indented JSON for prompts.
func (c *Catalog) Render() string {
	roots := c.roots
	if roots == nil {
		roots = []*Node{}
	}
	data, err := json.MarshalIndent(roots, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
