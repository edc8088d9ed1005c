package oracle

import (
	"context"
	"strings"
	"sync"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/tokens"
)

// price is USD per million tokens.
type price struct {
	input, output float64
}

// pricing is matched by model-name prefix, longest prefix first.
var pricing = []struct {
	prefix string
	price  price
}{
	{"gpt-4o-mini", price{0.15, 0.6}},
	{"gpt-4o", price{2.5, 10}},
	{"gpt-4.1-mini", price{0.4, 1.6}},
	{"gpt-4.1", price{2, 8}},
	{"claude-opus", price{15, 75}},
	{"claude-sonnet", price{3, 15}},
	{"claude-haiku", price{1, 5}},
	{"claude-3-5-haiku", price{0.8, 4}},
}

func priceFor(model string) price {
	m := strings.TrimPrefix(model, "us.anthropic.")
	best := -1
	for i, p := range pricing {
		if strings.HasPrefix(m, p.prefix) && (best < 0 || len(p.prefix) > len(pricing[best].prefix)) {
			best = i
		}
	}
	if best < 0 {
		// Unknown models are priced like a mid-tier model.
		return price{3, 15}
	}
	return pricing[best].price
}

// Cost estimates the cost in USD of usage on model.
func Cost(model string, u Usage) float64 {
	p := priceFor(model)
	return float64(u.InputTokens)/1_000_000*p.input + float64(u.OutputTokens)/1_000_000*p.output
}

// TokenTracker tracks token usage across oracle calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	cost      float64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records usage from one call on model.
func (t *TokenTracker) Add(model string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += u.InputTokens
	t.outputTok += u.OutputTokens
	t.cost += Cost(model, u)
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of calls recorded.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Cost returns the accumulated cost estimate in USD.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

// Metered wraps an Oracle and records token usage for every successful call.
// When the backend reports no usage, usage is estimated from the prompt and
// response text.
type Metered struct {
	next    Oracle
	model   string
	tracker *TokenTracker
	sink    events.Sink
}

// NewMetered creates a Metered oracle. model is used for pricing when the
// response does not name one.
func NewMetered(next Oracle, model string, tracker *TokenTracker, sink events.Sink) *Metered {
	if tracker == nil {
		tracker = NewTokenTracker()
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Metered{next: next, model: model, tracker: tracker, sink: sink}
}

// Tracker returns the token tracker.
func (m *Metered) Tracker() *TokenTracker {
	return m.tracker
}

// Complete implements Oracle.
func (m *Metered) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	u := resp.Usage
	if u.Total() == 0 {
		u = Usage{
			InputTokens:  int64(tokens.Count(req.System) + tokens.Count(req.Prompt)),
			OutputTokens: int64(tokens.Count(resp.Text)),
		}
	}
	model := resp.Model
	if model == "" {
		model = m.model
	}
	m.tracker.Add(model, u)

	m.sink.Emit(events.Event{
		Type:   events.TokenUsage,
		Tokens: u.Total(),
		Cost:   Cost(model, u),
		Data: map[string]any{
			"model":         model,
			"input_tokens":  u.InputTokens,
			"output_tokens": u.OutputTokens,
		},
	})
	return resp, nil
}
