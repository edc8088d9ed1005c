package oracle

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wayfinder.oracle")

// Traced wraps an Oracle and records a span per call.
type Traced struct {
	next Oracle
	name string
}

// NewTraced creates a Traced oracle; name identifies the backend in spans.
func NewTraced(next Oracle, name string) *Traced {
	return &Traced{next: next, name: name}
}

// Complete implements Oracle.
func (t *Traced) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "oracle.Complete",
		trace.WithAttributes(
			attribute.String("oracle.backend", t.name),
			attribute.Float64("oracle.temperature", req.Temperature),
			attribute.Int("oracle.top_logprobs", req.TopLogprobs),
			attribute.Bool("oracle.stream", req.Stream),
		),
	)
	defer span.End()

	resp, err := t.next.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("oracle.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("oracle.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("oracle.candidates", len(resp.Candidates)),
	)
	return resp, nil
}
