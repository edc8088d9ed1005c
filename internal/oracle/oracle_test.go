package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/wayfinder/internal/events"
)

func TestScripted(t *testing.T) {
	s := NewScripted(
		ScriptedResponse{Text: "first"},
		ScriptedResponse{Err: errors.New("boom")},
	)
	ctx := context.Background()

	resp, err := s.Complete(ctx, Request{Prompt: "a"})
	if err != nil || resp.Text != "first" {
		t.Fatalf("call 1 = %v, %v", resp, err)
	}
	if _, err := s.Complete(ctx, Request{Prompt: "b"}); err == nil || err.Error() != "boom" {
		t.Errorf("call 2 error = %v, want boom", err)
	}
	if _, err := s.Complete(ctx, Request{Prompt: "c"}); err == nil {
		t.Error("call 3 error = nil, want exhausted script")
	}
	if got := len(s.Requests()); got != 3 {
		t.Errorf("Requests() = %d, want 3", got)
	}
}

func TestScripted_Repeat(t *testing.T) {
	s := NewScripted(ScriptedResponse{Text: "again"})
	s.Repeat = true
	for i := 0; i < 3; i++ {
		resp, err := s.Complete(context.Background(), Request{})
		if err != nil || resp.Text != "again" {
			t.Fatalf("call %d = %v, %v", i, resp, err)
		}
	}
}

func TestMetered(t *testing.T) {
	var (
		mu  sync.Mutex
		got []events.Event
	)
	sink := events.SinkFunc(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	next := Func(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "ok", Model: "gpt-4o-mini", Usage: Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}}, nil
	})
	m := NewMetered(next, "", nil, sink)

	if _, err := m.Complete(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}

	in, out := m.Tracker().Total()
	if in != 1_000_000 || out != 1_000_000 {
		t.Errorf("Total() = %d/%d", in, out)
	}
	if cost := m.Tracker().Cost(); cost < 0.74 || cost > 0.76 {
		t.Errorf("Cost() = %v, want 0.75", cost)
	}
	if len(got) != 1 || got[0].Type != events.TokenUsage || got[0].Tokens != 2_000_000 {
		t.Errorf("events = %+v", got)
	}
}

func TestMetered_EstimatesMissingUsage(t *testing.T) {
	next := Func(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "a reasonably long answer"}, nil
	})
	m := NewMetered(next, "claude-sonnet-4-5", nil, nil)
	if _, err := m.Complete(context.Background(), Request{Prompt: "a reasonably long question"}); err != nil {
		t.Fatal(err)
	}
	in, out := m.Tracker().Total()
	if in == 0 || out == 0 {
		t.Errorf("estimated usage = %d/%d, want non-zero", in, out)
	}
}

func TestPriceFor(t *testing.T) {
	tests := []struct {
		model string
		want  price
	}{
		{"gpt-4o-mini-2024-07-18", price{0.15, 0.6}},
		{"gpt-4o", price{2.5, 10}},
		{"us.anthropic.claude-sonnet-4-5-20250929-v1:0", price{3, 15}},
		{"mystery", price{3, 15}},
	}
	for _, tt := range tests {
		if got := priceFor(tt.model); got != tt.want {
			t.Errorf("priceFor(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestRateLimited(t *testing.T) {
	calls := 0
	next := Func(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return &Response{Text: "ok"}, nil
	})

	if o := NewRateLimited(next, 0, 0); o == nil {
		t.Fatal("NewRateLimited(0) returned nil")
	}

	o := NewRateLimited(next, 1, 1)
	ctx := context.Background()
	if _, err := o.Complete(ctx, Request{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := o.Complete(ctx, Request{}); err == nil {
		t.Error("second call within the window should fail on a short deadline")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestTraced(t *testing.T) {
	want := errors.New("down")
	o := NewTraced(Func(func(ctx context.Context, req Request) (*Response, error) {
		return nil, want
	}), "test")
	if _, err := o.Complete(context.Background(), Request{}); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}

func TestAnthropic_RejectsLogprobs(t *testing.T) {
	a, err := NewAnthropic(AnthropicConfig{APIKey: "test"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Complete(context.Background(), Request{TopLogprobs: 10}); !errors.Is(err, ErrLogprobsUnsupported) {
		t.Errorf("error = %v, want ErrLogprobsUnsupported", err)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	if got := translateModelForBedrock("claude-sonnet-4-5-20250929"); got != "us.anthropic.claude-sonnet-4-5-20250929-v1:0" {
		t.Errorf("translateModelForBedrock() = %s", got)
	}
	if got := translateModelForBedrock("us.anthropic.custom"); got != "us.anthropic.custom" {
		t.Errorf("already translated model changed: %s", got)
	}
}

func TestOpenAI_Logprobs(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "x", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "3"},
				"finish_reason": "stop",
				"logprobs": {"content": [{
					"token": "3", "logprob": -0.1,
					"top_logprobs": [
						{"token": "3", "logprob": -0.1},
						{"token": "\"4", "logprob": -2.3}
					]
				}]}
			}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 1, "total_tokens": 51}
		}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := o.Complete(context.Background(), Request{Prompt: "pick", TopLogprobs: 10, MaxTokens: 16})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[1].Token != "\"4" {
		t.Errorf("Candidates = %+v", resp.Candidates)
	}
	if resp.Usage.InputTokens != 50 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if body["logprobs"] != true || body["top_logprobs"] != float64(10) {
		t.Errorf("request logprobs fields = %v / %v", body["logprobs"], body["top_logprobs"])
	}
	if temp, ok := body["temperature"].(float64); !ok || temp > 1e-6 {
		t.Errorf("temperature = %v, want ~0", body["temperature"])
	}
}

func TestOpenAI_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"plan.add_", "task(\"A\")"} {
			data, _ := json.Marshal(map[string]any{
				"id": "x", "object": "chat.completion.chunk", "model": "gpt-4o-mini",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": chunk}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := o.Complete(context.Background(), Request{Prompt: "go", Stream: true})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(resp.Text, `plan.add_task("A")`) {
		t.Errorf("Text = %q", resp.Text)
	}
}
