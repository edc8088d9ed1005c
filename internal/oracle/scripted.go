package oracle

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is an Oracle that replays canned responses in order. It is used
// by tests and by offline runs.
type Scripted struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []Request
	// Repeat keeps returning the last response once the script is exhausted.
	Repeat bool
}

// ScriptedResponse is one canned answer. Err, when set, is returned instead
// of a response.
type ScriptedResponse struct {
	Text       string
	Candidates []TokenCandidate
	Err        error
}

// NewScripted creates a Scripted oracle.
func NewScripted(responses ...ScriptedResponse) *Scripted {
	return &Scripted{responses: responses}
}

// Push appends responses to the script.
func (s *Scripted) Push(responses ...ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Complete implements Oracle.
func (s *Scripted) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted oracle: no response for call %d", len(s.requests))
	}
	next := s.responses[0]
	if len(s.responses) > 1 || !s.Repeat {
		s.responses = s.responses[1:]
	}
	if next.Err != nil {
		return nil, next.Err
	}
	return &Response{Text: next.Text, Candidates: next.Candidates, Model: "scripted"}, nil
}
