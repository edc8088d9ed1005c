package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	// APIKey is the API key. If empty, uses OPENAI_API_KEY env var.
	APIKey string
	// Model is the chat model name.
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// OpenAI is an Oracle backed by an OpenAI-compatible chat completions API.
// It is the backend that supports first-token logprobs.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

func (o *OpenAI) request(req Request) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	temp := float32(req.Temperature)
	if temp == 0 {
		// Temperature is omitempty on the wire; a zero would fall back to the
		// server default of 1.
		temp = math.SmallestNonzeroFloat32
	}

	out := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
	}
	if req.TopLogprobs > 0 {
		out.LogProbs = true
		out.TopLogProbs = req.TopLogprobs
	}
	return out
}

// Complete implements Oracle. Logprob requests are never streamed, since
// streamed chunks do not carry the first-token alternatives reliably.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Stream && req.TopLogprobs == 0 {
		return o.stream(ctx, req)
	}

	o.logger.Debug("openai completion", "model", o.model, "top_logprobs", req.TopLogprobs)
	resp, err := o.client.CreateChatCompletion(ctx, o.request(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	out := &Response{
		Text:  choice.Message.Content,
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	if choice.LogProbs != nil && len(choice.LogProbs.Content) > 0 {
		first := choice.LogProbs.Content[0]
		for _, alt := range first.TopLogProbs {
			out.Candidates = append(out.Candidates, TokenCandidate{Token: alt.Token, Logprob: alt.LogProb})
		}
		if len(out.Candidates) == 0 {
			out.Candidates = []TokenCandidate{{Token: first.Token, Logprob: first.LogProb}}
		}
	}
	return out, nil
}

func (o *OpenAI) stream(ctx context.Context, req Request) (*Response, error) {
	creq := o.request(req)
	creq.Stream = true
	creq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	o.logger.Debug("openai streaming completion", "model", o.model)
	stream, err := o.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	out := &Response{Model: o.model}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("openai stream recv: %w", err)
		}
		for _, c := range chunk.Choices {
			sb.WriteString(c.Delta.Content)
		}
		if chunk.Usage != nil {
			out.Usage = Usage{
				InputTokens:  int64(chunk.Usage.PromptTokens),
				OutputTokens: int64(chunk.Usage.CompletionTokens),
			}
		}
	}

	out.Text = sb.String()
	if out.Text == "" {
		return nil, ErrEmptyResponse
	}
	return out, nil
}
