// Package oracle is the boundary to the language model. Every component that
// asks the model something goes through the Oracle interface; backends,
// decorators and test doubles live here.
package oracle

import (
	"context"
	"errors"
)

// ErrLogprobsUnsupported is returned by backends that cannot report
// per-token log-probabilities.
var ErrLogprobsUnsupported = errors.New("oracle backend does not support logprobs")

// ErrEmptyResponse indicates the backend returned no content.
var ErrEmptyResponse = errors.New("oracle returned no content")

// Request is a single completion request.
type Request struct {
	// Prompt is the user message.
	Prompt string
	// System is the optional system message.
	System string
	// Temperature is the sampling temperature; 0 asks for greedy decoding.
	Temperature float64
	// Stream asks the backend to stream the response. The full text is still
	// returned from Complete.
	Stream bool
	// TopLogprobs asks for the N most likely alternatives of the first
	// generated token. Zero disables logprobs.
	TopLogprobs int
	// MaxTokens caps the response length; zero uses the backend default.
	MaxTokens int
}

// TokenCandidate is one alternative for the first generated token.
type TokenCandidate struct {
	Token   string
	Logprob float64
}

// Usage reports the tokens a call consumed.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Response is the oracle's answer.
type Response struct {
	Text string
	// Candidates holds the first-token alternatives when TopLogprobs > 0.
	Candidates []TokenCandidate
	Usage      Usage
	// Model is the backend model that produced the response.
	Model string
}

// Oracle completes prompts.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Complete calls f(ctx, req).
func (f Func) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
