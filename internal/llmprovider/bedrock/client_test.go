package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/kestrel-run/agentcore/pkg/models"
)

type fakeConverseClient struct {
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeConverseClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return f.out, f.err
}

func (f *fakeConverseClient) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestCallTranslatesTextAndUsage(t *testing.T) {
	fake := &fakeConverseClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "hello there"}},
				},
			},
			Usage:      &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
			StopReason: types.StopReasonEndTurn,
		},
	}
	c, err := New(fake, "anthropic.claude-3-5-sonnet-20241022-v2:0", 1024)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Call(context.Background(), "hi", models.CallOptions{"temperature": 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("expected translated text, got %q", resp.Text)
	}
	if resp.TokensUsed.Total != 15 {
		t.Fatalf("expected total tokens 15, got %d", resp.TokensUsed.Total)
	}
	if resp.FinishReason != string(types.StopReasonEndTurn) {
		t.Fatalf("expected finish reason %q, got %q", types.StopReasonEndTurn, resp.FinishReason)
	}
}

func TestCallPropagatesConverseError(t *testing.T) {
	fake := &fakeConverseClient{err: context.DeadlineExceeded}
	c, err := New(fake, "anthropic.claude-3-5-sonnet-20241022-v2:0", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Call(context.Background(), "hi", nil); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestNewRejectsMissingModel(t *testing.T) {
	if _, err := New(&fakeConverseClient{}, "", 0); err == nil {
		t.Fatal("expected error for missing model id")
	}
}

func TestCapabilitiesReportsStreaming(t *testing.T) {
	c, err := New(&fakeConverseClient{}, "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Capabilities().SupportsStreaming {
		t.Fatal("expected bedrock adapter to report streaming support")
	}
}
