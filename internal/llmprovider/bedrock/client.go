// Package bedrock implements the LLM adapter collaborator (§6) on top of AWS
// Bedrock's Converse API. It exists alongside internal/llmprovider/anthropic
// to show the loop is provider-agnostic: both satisfy looprunner.LLMClient
// and differ only in how they talk to the network.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// ConverseClient captures the subset of the Bedrock runtime client used
// here, so tests can supply a fake instead of a live AWS client.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client adapts a Bedrock runtime client to looprunner.LLMClient.
type Client struct {
	rt        ConverseClient
	model     string
	maxTokens int32
}

// New builds a Client around an already-configured Bedrock runtime client.
// model is a Bedrock model ID, e.g. "anthropic.claude-3-5-sonnet-20241022-v2:0".
func New(rt ConverseClient, model string, maxTokens int) (*Client, error) {
	if rt == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if model == "" {
		return nil, errors.New("bedrock: model id is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{rt: rt, model: model, maxTokens: int32(maxTokens)}, nil
}

// NewFromRegion builds a Client using the default AWS credential chain for
// region.
func NewFromRegion(ctx context.Context, region, model string, maxTokens int) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading aws config: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(cfg), model, maxTokens)
}

// Call issues a non-streaming completion for prompt via the Converse API.
func (c *Client) Call(ctx context.Context, prompt string, opts models.CallOptions) (*models.LLMResponse, error) {
	start := time.Now()
	input := c.buildInput(prompt, opts)

	out, err := c.rt.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translate(out, c.model, time.Since(start)), nil
}

// CallStreaming drains a ConverseStream response, forwarding text deltas to
// onChunk as they arrive, and returns the assembled final response.
func (c *Client) CallStreaming(ctx context.Context, prompt string, opts models.CallOptions, onChunk func(models.LLMChunk)) (*models.LLMResponse, error) {
	start := time.Now()
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         c.buildInput(prompt, opts).ModelId,
		Messages:        c.buildInput(prompt, opts).Messages,
		InferenceConfig: c.buildInput(prompt, opts).InferenceConfig,
	}

	stream, err := c.rt.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse_stream: %w", err)
	}

	var text strings.Builder
	var finishReason string
	var usage models.TokensUsed

	eventStream := stream.GetStream()
	defer eventStream.Close()

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
				text.WriteString(delta.Value)
				if onChunk != nil {
					onChunk(models.LLMChunk{Delta: delta.Value})
				}
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			finishReason = string(ev.Value.StopReason)
		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage = models.TokensUsed{
					Prompt:     int(aws.ToInt32(ev.Value.Usage.InputTokens)),
					Completion: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
					Total:      int(aws.ToInt32(ev.Value.Usage.TotalTokens)),
				}
			}
		}
	}
	if err := eventStream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock: stream: %w", err)
	}
	if onChunk != nil {
		onChunk(models.LLMChunk{Done: true})
	}

	return &models.LLMResponse{
		Text:           text.String(),
		TokensUsed:     usage,
		Model:          c.model,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		FinishReason:   finishReason,
	}, nil
}

// CountTokens estimates token count at roughly 4 characters per token, since
// the Converse API has no offline tokenizer endpoint.
func (c *Client) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// Capabilities reports what this adapter supports. Bedrock's Converse API
// streams via a distinct call (ConverseStream), which CallStreaming above
// implements, so SupportsStreaming is true here unlike the Anthropic
// adapter's current fallback.
func (c *Client) Capabilities() models.LLMCapabilities {
	return models.LLMCapabilities{SupportsStreaming: true, SupportsTools: true, MaxContextTokens: 200000}
}

func (c *Client) buildInput(prompt string, opts models.CallOptions) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(c.maxTokens)},
	}
	if temp, ok := opts["temperature"].(float64); ok {
		input.InferenceConfig.Temperature = aws.Float32(float32(temp))
	}
	return input
}

func translate(out *bedrockruntime.ConverseOutput, model string, elapsed time.Duration) *models.LLMResponse {
	var text string
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}
	var usage models.TokensUsed
	if out.Usage != nil {
		usage = models.TokensUsed{
			Prompt:     int(aws.ToInt32(out.Usage.InputTokens)),
			Completion: int(aws.ToInt32(out.Usage.OutputTokens)),
			Total:      int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return &models.LLMResponse{
		Text:           text,
		TokensUsed:     usage,
		Model:          model,
		ResponseTimeMs: elapsed.Milliseconds(),
		FinishReason:   string(out.StopReason),
	}
}
