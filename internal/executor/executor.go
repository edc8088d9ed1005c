// Package executor carries out ranked options against the desktop and
// records what happened in the session history.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
	"github.com/ShayCichocki/wayfinder/internal/tokens"
	"github.com/ShayCichocki/wayfinder/internal/views"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// AppPrefix marks link targets that open an app instead of navigating.
const AppPrefix = "/apps/"

// FieldTemperature is the sampling temperature used to fill action fields.
const FieldTemperature = 0.2

// Bounds of the field-filling prompt. History keeps its newest events, the
// plan its first tasks.
const (
	maxHistoryTokens = 3000
	maxPlanTokens    = 2000
)

// Context is what the executor tells the oracle when filling action fields.
type Context struct {
	History []models.HistoryEvent
	// Plan is the rendered task plan.
	Plan string
}

// Executor runs options against a Desktop.
type Executor struct {
	desktop views.Desktop
	oracle  oracle.Oracle
	sink    events.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Executor. The oracle is used only to fill action fields.
func New(desktop views.Desktop, o oracle.Oracle, sink events.Sink, logger *slog.Logger) *Executor {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{desktop: desktop, oracle: o, sink: sink, logger: logger, now: time.Now}
}

// Execute performs opt and returns the history events it produced.
func (e *Executor) Execute(ctx context.Context, opt models.RankedOption, hc Context) ([]models.HistoryEvent, error) {
	var (
		hist []models.HistoryEvent
		err  error
	)
	switch opt.Kind {
	case models.OptionClickLink:
		hist, err = e.clickLink(ctx, opt)
	case models.OptionAction:
		hist, err = e.startAction(ctx, opt, hc)
	case models.OptionCloseWindow:
		hist, err = e.closeWindow(ctx, opt)
	case models.OptionIdle:
		return nil, nil
	default:
		return nil, fmt.Errorf("execute option %s: unknown kind %q", opt.Token, opt.Kind)
	}

	ev := events.Event{
		Type:    events.OptionExecuted,
		Message: opt.Name,
		Data:    map[string]any{"kind": string(opt.Kind), "token": opt.Token, "score": opt.Score, "window_id": opt.WindowID},
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.sink.Emit(ev)
	return hist, err
}

func (e *Executor) clickLink(ctx context.Context, opt models.RankedOption) ([]models.HistoryEvent, error) {
	var err error
	if strings.HasPrefix(opt.TargetPath, AppPrefix) {
		err = e.desktop.OpenApp(ctx, strings.TrimPrefix(opt.TargetPath, AppPrefix))
	} else {
		err = e.desktop.Navigate(ctx, opt.WindowID, opt.TargetPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open link %q: %w", opt.Name, err)
	}
	return []models.HistoryEvent{e.history(models.HistoryNavigation, map[string]any{
		"opened_view_id":          opt.WindowID,
		"opened_view_label":       opt.Name,
		"opened_view_description": opt.Description,
		"target_path":             opt.TargetPath,
	})}, nil
}

func (e *Executor) closeWindow(ctx context.Context, opt models.RankedOption) ([]models.HistoryEvent, error) {
	err := e.desktop.CloseWindow(ctx, opt.WindowID)
	result := "success"
	if err != nil {
		result = "failed"
	}
	hist := []models.HistoryEvent{e.history(models.HistoryAction, map[string]any{
		"action_id":          opt.Token,
		"action_name":        opt.Name,
		"action_description": opt.Description,
		"result":             result,
		"view_closed":        opt.WindowID,
	})}
	if err != nil {
		return hist, fmt.Errorf("close window %s: %w", opt.WindowID, err)
	}
	return hist, nil
}

func (e *Executor) startAction(ctx context.Context, opt models.RankedOption, hc Context) ([]models.HistoryEvent, error) {
	values := map[string]any{}
	if len(opt.Fields) > 0 {
		var err error
		values, err = e.fillFields(ctx, opt, hc)
		if err != nil {
			return nil, fmt.Errorf("fill fields of %q: %w", opt.Name, err)
		}
	}

	res, err := e.desktop.StartAction(ctx, opt.WindowID, opt.ActionPath, values)
	call := map[string]any{
		"action_id":   opt.Token,
		"action_name": opt.Name,
		"parameters":  values,
		"timestamp":   e.now().UTC().Format(time.RFC3339),
	}
	hist := []models.HistoryEvent{e.history(models.HistoryAction, map[string]any{
		"action_id":          opt.Token,
		"action_name":        opt.Name,
		"action_description": opt.Description,
		"tool_call":          call,
	})}
	if err != nil {
		return hist, fmt.Errorf("start action %q: %w", opt.Name, err)
	}
	if res.Observation != "" {
		hist = append(hist, e.history(models.HistoryObservation, map[string]any{
			"text":   res.Observation,
			"action": opt.Name,
		}))
	}
	return hist, nil
}

// fillFields asks the oracle for a JSON object of field values. Malformed
// JSON is repaired before decoding.
func (e *Executor) fillFields(ctx context.Context, opt models.RankedOption, hc Context) (map[string]any, error) {
	def, err := json.MarshalIndent(toolDefinition(opt), "", "  ")
	if err != nil {
		return nil, err
	}
	resp, err := e.oracle.Complete(ctx, oracle.Request{
		System:      fieldsSystem,
		Prompt:      fmt.Sprintf(fieldsPrompt, tokens.TruncateTail(models.FormatHistory(hc.History), maxHistoryTokens), tokens.Truncate(hc.Plan, maxPlanTokens), def, opt.Name),
		Temperature: FieldTemperature,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, oracle.ErrEmptyResponse
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("decode field values: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &values); err != nil {
			return nil, fmt.Errorf("decode repaired field values: %w", err)
		}
		e.logger.Debug("repaired action field JSON", "action", opt.Name)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func (e *Executor) history(typ models.HistoryType, content map[string]any) models.HistoryEvent {
	return models.HistoryEvent{
		ID:          uuid.NewString(),
		Date:        e.now(),
		Type:        typ,
		Application: "os",
		Content:     content,
	}
}

type schemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type toolParameters struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  toolParameters `json:"parameters"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

// toolDefinition describes an action's fields as a function-call schema.
func toolDefinition(opt models.RankedOption) tool {
	params := toolParameters{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(opt.Fields)),
		Required:   []string{},
	}
	for _, f := range opt.Fields {
		desc := f.Description
		if desc == "" {
			desc = f.Name + " parameter"
		}
		prop := schemaProperty{Type: jsonSchemaType(f.Type), Description: desc}
		if strings.EqualFold(f.Type, "enum") {
			prop.Enum = f.Options
		}
		params.Properties[f.Name] = prop
		if f.Required {
			params.Required = append(params.Required, f.Name)
		}
	}
	return tool{
		Type:     "function",
		Function: toolFunction{Name: opt.Token, Description: opt.Description, Parameters: params},
	}
}

func jsonSchemaType(fieldType string) string {
	switch strings.ToLower(fieldType) {
	case "number", "integer", "boolean", "array", "object":
		return strings.ToLower(fieldType)
	default:
		return "string"
	}
}
