// Package rank asks the oracle which catalog option to take next and turns
// the first-token log-probabilities into a filtered, scored option list.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ShayCichocki/wayfinder/internal/catalog"
	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/oracle"
	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/internal/tokens"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// Defaults for Config.
const (
	DefaultTopLogprobs     = 10
	DefaultMaxTokens       = 16
	DefaultLinkThreshold   = 0.2
	DefaultActionThreshold = 0.6
	DefaultMaxPromptTokens = 12000
)

var nonToken = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Config configures a Ranker.
type Config struct {
	// TopLogprobs is the number of first-token alternatives requested.
	TopLogprobs int
	// MaxTokens caps the completion length.
	MaxTokens int
	// LinkThreshold is the score a click_link option must exceed.
	LinkThreshold float64
	// ActionThreshold is the score action and close_window options must exceed.
	ActionThreshold float64
	// MaxPromptTokens bounds the prompt; history is cut oldest first.
	MaxPromptTokens int
}

func (c Config) withDefaults() Config {
	if c.TopLogprobs <= 0 {
		c.TopLogprobs = DefaultTopLogprobs
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.LinkThreshold <= 0 {
		c.LinkThreshold = DefaultLinkThreshold
	}
	if c.ActionThreshold <= 0 {
		c.ActionThreshold = DefaultActionThreshold
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = DefaultMaxPromptTokens
	}
	return c
}

// Input is the context of one ranking pass.
type Input struct {
	History []models.HistoryEvent
	Plan    *plan.TaskGraph
	Catalog *catalog.Catalog
}

// Ranker scores catalog options through the oracle.
type Ranker struct {
	oracle oracle.Oracle
	cfg    Config
	sink   events.Sink
	logger *slog.Logger
}

// New creates a Ranker.
func New(o oracle.Oracle, cfg Config, sink events.Sink, logger *slog.Logger) *Ranker {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ranker{oracle: o, cfg: cfg.withDefaults(), sink: sink, logger: logger}
}

// Rank returns the options worth executing, best first. It never fails: any
// oracle or parse error yields an empty list.
func (r *Ranker) Rank(ctx context.Context, in Input) []models.RankedOption {
	if in.Catalog == nil || in.Catalog.Len() == 0 {
		r.decide(nil, "no options")
		return nil
	}

	resp, err := r.oracle.Complete(ctx, oracle.Request{
		System:      systemPrompt,
		Prompt:      r.prompt(in),
		Temperature: 0,
		MaxTokens:   r.cfg.MaxTokens,
		TopLogprobs: r.cfg.TopLogprobs,
	})
	if err != nil {
		r.logger.Warn("ranking call failed", "error", err)
		r.sink.Emit(events.Event{Type: events.Thought, Message: "Error selecting tool"})
		r.decide(nil, err.Error())
		return nil
	}
	if len(resp.Candidates) == 0 {
		r.logger.Warn("ranking response carried no token candidates", "model", resp.Model)
		r.decide(nil, "no candidates")
		return nil
	}

	ranked := r.filter(resolve(in.Catalog, resp.Candidates), in.Catalog.IdleToken())
	r.decide(ranked, "")
	return ranked
}

// resolve maps candidates to options, keeping the best score per token.
func resolve(c *catalog.Catalog, candidates []oracle.TokenCandidate) []models.RankedOption {
	best := make(map[string]int)
	var out []models.RankedOption
	for _, cand := range candidates {
		tok := Sanitize(cand.Token)
		if tok == "" {
			continue
		}
		opt, ok := c.Lookup(tok)
		if !ok {
			continue
		}
		score := math.Exp(cand.Logprob)
		if i, seen := best[tok]; seen {
			if score > out[i].Score {
				out[i].Score = score
			}
			continue
		}
		best[tok] = len(out)
		out = append(out, models.RankedOption{Option: opt, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// filter applies the kind thresholds and the idle cutoff to a sorted list.
func (r *Ranker) filter(resolved []models.RankedOption, idleToken string) []models.RankedOption {
	idleScore, hasIdle := 0.0, false
	for _, o := range resolved {
		if idleToken != "" && o.Token == idleToken {
			idleScore, hasIdle = o.Score, true
			break
		}
	}

	var out []models.RankedOption
	for _, o := range resolved {
		if o.Kind == models.OptionIdle {
			continue
		}
		if !r.accept(o) {
			continue
		}
		if hasIdle && o.Score < idleScore {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (r *Ranker) accept(o models.RankedOption) bool {
	switch o.Kind {
	case models.OptionAction, models.OptionCloseWindow:
		return o.Score > r.cfg.ActionThreshold
	case models.OptionClickLink:
		return o.Score > r.cfg.LinkThreshold
	default:
		return false
	}
}

func (r *Ranker) decide(ranked []models.RankedOption, reason string) {
	parts := make([]string, len(ranked))
	for i, o := range ranked {
		parts[i] = fmt.Sprintf("%s:%s:%.3f", o.Token, o.Kind, o.Score)
	}
	e := events.Event{
		Type:    events.RankingDecision,
		Message: strings.Join(parts, " "),
		Data:    map[string]any{"count": len(ranked), "options": ranked},
	}
	if reason != "" {
		e.Error = reason
	}
	r.sink.Emit(e)
}

// Sanitize normalises a candidate token: surrounding whitespace and quotes
// are removed, then every character outside [a-zA-Z0-9_-].
func Sanitize(token string) string {
	t := strings.TrimSpace(token)
	if len(t) >= 2 && strings.HasPrefix(t, `"`) && strings.HasSuffix(t, `"`) {
		t = t[1 : len(t)-1]
	}
	return nonToken.ReplaceAllString(t, "")
}

// prompt renders the ranking prompt, cutting the oldest history to fit
// MaxPromptTokens.
func (r *Ranker) prompt(in Input) string {
	views := in.Catalog.Render()
	planText := FormatPlan(in.Plan)
	history := models.FormatHistory(in.History)

	fixed := tokens.Count(systemPrompt) + tokens.Count(fmt.Sprintf(userPrompt, "", views, planText))
	budget := r.cfg.MaxPromptTokens - fixed
	if budget < 0 {
		budget = 1
	}
	history = tokens.TruncateTail(history, budget)
	return fmt.Sprintf(userPrompt, history, views, planText)
}

// FormatPlan renders the plan with statuses, prerequisites and subtasks.
func FormatPlan(g *plan.TaskGraph) string {
	if g == nil || g.Len() == 0 {
		return "Task Plan\n\n(no tasks)"
	}
	var sb strings.Builder
	sb.WriteString("Task Plan\n")
	for i, t := range g.GetAllTasks() {
		fmt.Fprintf(&sb, "\nTask %d: %s (Status: %s)", i+1, t.Title, statusLabel(t))
		writePrereqs(&sb, "    ", t.Prerequisites)
		subs, _ := g.Subtasks(t.ID)
		for j, s := range subs {
			fmt.Fprintf(&sb, "\n    Subtask %d.%d: %s (Status: %s)", i+1, j+1, s.Title, statusLabel(s))
			writePrereqs(&sb, "        ", s.Prerequisites)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func statusLabel(t models.Task) string {
	if t.IsCompleted() {
		return "Completed"
	}
	return "Pending"
}

func writePrereqs(sb *strings.Builder, indent string, prereqs []models.Prerequisite) {
	if len(prereqs) == 0 {
		return
	}
	parts := make([]string, len(prereqs))
	for i, p := range prereqs {
		parts[i] = p.Name + ": " + p.Description
	}
	fmt.Fprintf(sb, "\n%sPrerequisites: %s", indent, strings.Join(parts, ", "))
}
