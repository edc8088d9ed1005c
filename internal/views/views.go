// Package views is the boundary to the view system: the desktop whose windows
// the agent reads and drives.
package views

import (
	"context"
	"errors"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

var (
	// ErrUnknownApp indicates OpenApp was given an app the desktop does not have.
	ErrUnknownApp = errors.New("unknown app")
	// ErrUnknownWindow indicates a window ID that is not open.
	ErrUnknownWindow = errors.New("window not open")
	// ErrUnknownView indicates a router path with no view.
	ErrUnknownView = errors.New("no view at path")
	// ErrUnknownAction indicates an action path the window's view does not expose.
	ErrUnknownAction = errors.New("unknown action")
	// ErrNotClosable indicates an attempt to close the desktop.
	ErrNotClosable = errors.New("window cannot be closed")
)

// ActionResult is what a started action reports back.
type ActionResult struct {
	// Observation is a human-readable outcome, recorded in the history.
	Observation string `json:"observation,omitempty"`
	// Output carries structured results, if any.
	Output map[string]any `json:"output,omitempty"`
}

// Desktop is the view system an agent session operates on.
type Desktop interface {
	// Windows returns the open windows in display order.
	Windows(ctx context.Context) ([]models.Window, error)
	// OpenApp opens an app in a new window, or focuses it if already open.
	OpenApp(ctx context.Context, name string) error
	// Navigate replaces a window's view with the view at path.
	Navigate(ctx context.Context, windowID, path string) error
	// StartAction triggers an action of a window's view.
	StartAction(ctx context.Context, windowID, actionPath string, values map[string]any) (ActionResult, error)
	// CloseWindow closes a window.
	CloseWindow(ctx context.Context, windowID string) error
}
