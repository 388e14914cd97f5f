// Package anthropic implements the LLM adapter collaborator (§6) on top of
// the Anthropic Claude Messages API. The agent loop only ever sees the
// looprunner.LLMClient interface; this package is the concrete binding.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can supply a fake instead of a live HTTP client.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client adapts an Anthropic Messages client to looprunner.LLMClient.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds a Client. model is the Anthropic model identifier (for
// example string(sdk.ModelClaudeSonnet4_5_20250929)); maxTokens bounds
// every completion request.
func New(msg MessagesClient, model string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey builds a Client from an API key using the SDK's default
// HTTP client.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, model, maxTokens)
}

// Call issues a non-streaming completion for prompt.
func (c *Client) Call(ctx context.Context, prompt string, opts models.CallOptions) (*models.LLMResponse, error) {
	start := time.Now()
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if temp, ok := opts["temperature"].(float64); ok {
		params.Temperature = sdk.Float(temp)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translate(msg, c.model, time.Since(start)), nil
}

// CallStreaming falls back to Call: the Anthropic SDK's streaming surface
// needs its own event-decoding loop, which the demo binary doesn't yet
// exercise. Capabilities().SupportsStreaming reports false so
// internal/looprunner never takes this path in practice.
func (c *Client) CallStreaming(ctx context.Context, prompt string, opts models.CallOptions, onChunk func(models.LLMChunk)) (*models.LLMResponse, error) {
	resp, err := c.Call(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(models.LLMChunk{Delta: resp.Text, Done: true})
	}
	return resp, nil
}

// CountTokens estimates token count at roughly 4 characters per token,
// since the Messages API has no offline tokenizer endpoint.
func (c *Client) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// Capabilities reports what this adapter supports.
func (c *Client) Capabilities() models.LLMCapabilities {
	return models.LLMCapabilities{SupportsStreaming: false, SupportsTools: true, MaxContextTokens: 200000}
}

func translate(msg *sdk.Message, model string, elapsed time.Duration) *models.LLMResponse {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &models.LLMResponse{
		Text: text,
		TokensUsed: models.TokensUsed{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
			Total:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Model:          model,
		ResponseTimeMs: elapsed.Milliseconds(),
		FinishReason:   string(msg.StopReason),
	}
}
