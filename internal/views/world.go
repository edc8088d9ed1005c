package views

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// DesktopID is the window ID of the desktop.
const DesktopID = "/"

// Effect is the scripted outcome of an action in a site map.
type Effect struct {
	// Observation is reported back to the agent.
	Observation string `yaml:"observation"`
	// Navigate, when set, moves the acting window to this path.
	Navigate string `yaml:"navigate" validate:"omitempty,startswith=/"`
	// Close closes the acting window.
	Close bool `yaml:"close"`
}

// SiteMap describes a world: its desktop, its apps and every view by path.
type SiteMap struct {
	// Desktop is the root view. When its name is empty a desktop linking to
	// every app is generated.
	Desktop models.View `yaml:"desktop"`
	// Apps maps app names to the router path of their start view.
	Apps map[string]string `yaml:"apps" validate:"dive,startswith=/"`
	// Views maps router paths to views.
	Views map[string]models.View `yaml:"views" validate:"required,dive,keys,startswith=/,endkeys"`
	// Effects maps action paths to their outcome.
	Effects map[string]Effect `yaml:"effects" validate:"dive,keys,startswith=/,endkeys"`
}

var validate = validator.New()

// ParseSiteMap decodes and validates a YAML site map.
func ParseSiteMap(data []byte) (*SiteMap, error) {
	var site SiteMap
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parse site map: %w", err)
	}
	if err := validate.Struct(&site); err != nil {
		return nil, fmt.Errorf("invalid site map: %w", err)
	}
	for name, path := range site.Apps {
		if _, ok := site.Views[path]; !ok {
			return nil, fmt.Errorf("invalid site map: app %q: %w %s", name, ErrUnknownView, path)
		}
	}
	return &site, nil
}

// LoadSiteMap reads a site map file.
func LoadSiteMap(path string) (*SiteMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site map: %w", err)
	}
	return ParseSiteMap(data)
}

func (s *SiteMap) desktop() models.View {
	d := s.Desktop
	d.Type = models.ViewTypeDesktop
	if d.Name != "" {
		return d
	}
	d.Name = "Desktop"
	d.Description = "The desktop. Open an app to start working."
	names := make([]string, 0, len(s.Apps))
	for name := range s.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := s.Views[s.Apps[name]]
		d.ClickableLinks = append(d.ClickableLinks, models.Link{
			Name:        v.Name,
			Description: v.Description,
			RouterPath:  "/apps/" + name,
		})
	}
	return d
}

// Call records one operation performed on a World.
type Call struct {
	Op       string
	WindowID string
	Path     string
	Values   map[string]any
}

// World is an in-memory Desktop driven by a site map.
type World struct {
	mu      sync.RWMutex
	site    *SiteMap
	windows []models.Window
	calls   []Call
}

// NewWorld creates a World showing only the desktop.
func NewWorld(site *SiteMap) *World {
	return &World{
		site:    site,
		windows: []models.Window{{ID: DesktopID, View: site.desktop()}},
	}
}

// Windows implements Desktop.
func (w *World) Windows(ctx context.Context) ([]models.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.Window, len(w.windows))
	copy(out, w.windows)
	return out, nil
}

// OpenApp implements Desktop. The new window's ID is the app's start path.
func (w *World) OpenApp(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: "open_app", Path: name})

	path, ok := w.site.Apps[strings.TrimPrefix(name, "/apps/")]
	if !ok {
		return fmt.Errorf("open %q: %w", name, ErrUnknownApp)
	}
	if w.indexLocked(path) >= 0 {
		return nil
	}
	view, ok := w.site.Views[path]
	if !ok {
		return fmt.Errorf("open %q: %w %s", name, ErrUnknownView, path)
	}
	w.windows = append(w.windows, models.Window{ID: path, View: view})
	return nil
}

// Navigate implements Desktop. The window takes path as its new ID.
func (w *World) Navigate(ctx context.Context, windowID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: "navigate", WindowID: windowID, Path: path})
	return w.navigateLocked(windowID, path)
}

func (w *World) navigateLocked(windowID, path string) error {
	i := w.indexLocked(windowID)
	if i < 0 {
		return fmt.Errorf("navigate %s: %w", windowID, ErrUnknownWindow)
	}
	view, ok := w.site.Views[path]
	if !ok {
		return fmt.Errorf("navigate %s: %w %s", windowID, ErrUnknownView, path)
	}
	w.windows[i] = models.Window{ID: path, View: view}
	return nil
}

// StartAction implements Desktop. Required fields must be present in values.
func (w *World) StartAction(ctx context.Context, windowID, actionPath string, values map[string]any) (ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return ActionResult{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: "start_action", WindowID: windowID, Path: actionPath, Values: values})

	i := w.indexLocked(windowID)
	if i < 0 {
		return ActionResult{}, fmt.Errorf("action %s: %w", actionPath, ErrUnknownWindow)
	}
	action, ok := findAction(w.windows[i].View, actionPath)
	if !ok {
		return ActionResult{}, fmt.Errorf("action %s on %s: %w", actionPath, windowID, ErrUnknownAction)
	}
	for _, f := range action.Fields {
		if _, ok := values[f.Name]; f.Required && !ok {
			return ActionResult{}, fmt.Errorf("action %s: missing required field %q", actionPath, f.Name)
		}
	}

	effect := w.site.Effects[actionPath]
	res := ActionResult{Observation: effect.Observation, Output: values}
	if res.Observation == "" {
		res.Observation = fmt.Sprintf("%s completed", action.Label)
	}
	switch {
	case effect.Close && w.windows[i].ID != DesktopID:
		w.windows = append(w.windows[:i], w.windows[i+1:]...)
	case effect.Navigate != "":
		if err := w.navigateLocked(windowID, effect.Navigate); err != nil {
			return res, err
		}
	}
	return res, nil
}

// CloseWindow implements Desktop. The desktop cannot be closed.
func (w *World) CloseWindow(ctx context.Context, windowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, Call{Op: "close_window", WindowID: windowID})

	i := w.indexLocked(windowID)
	if i < 0 {
		return fmt.Errorf("close %s: %w", windowID, ErrUnknownWindow)
	}
	if w.windows[i].IsDesktop() {
		return fmt.Errorf("close %s: %w", windowID, ErrNotClosable)
	}
	w.windows = append(w.windows[:i], w.windows[i+1:]...)
	return nil
}

// Calls returns the operations performed so far.
func (w *World) Calls() []Call {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Call, len(w.calls))
	copy(out, w.calls)
	return out
}

// Reload swaps the site map. Open windows are refreshed from it; windows
// whose path no longer exists keep their last view.
func (w *World) Reload(site *SiteMap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.site = site
	for i, win := range w.windows {
		if win.IsDesktop() {
			w.windows[i].View = site.desktop()
			continue
		}
		if v, ok := site.Views[win.ID]; ok {
			w.windows[i].View = v
		}
	}
}

func (w *World) indexLocked(id string) int {
	for i, win := range w.windows {
		if win.ID == id {
			return i
		}
	}
	return -1
}

func findAction(v models.View, path string) (models.Action, bool) {
	for _, a := range v.Actions {
		if a.ActionPath == path {
			return a, true
		}
	}
	for _, children := range v.Children {
		for _, child := range children {
			if a, ok := findAction(child, path); ok {
				return a, true
			}
		}
	}
	return models.Action{}, false
}
