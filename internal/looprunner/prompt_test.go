package looprunner

import (
	"context"
	"strings"
	"testing"

	"github.com/kestrel-run/agentcore/pkg/models"
)

func TestDefaultPromptBuilderIncludesGoalAndTools(t *testing.T) {
	b := NewDefaultPromptBuilder()
	req := PromptRequest{
		Session:    &models.Session{Goal: "summarize the repo"},
		Tools:      []models.SchemaProjection{{Name: "echo", Description: "echoes input"}},
		StepNumber: 0,
		AutoRun:    true,
	}

	prompt, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "summarize the repo") {
		t.Fatalf("expected prompt to contain goal, got: %s", prompt)
	}
	if !strings.Contains(prompt, "echo") {
		t.Fatalf("expected prompt to list tool name, got: %s", prompt)
	}
	if !strings.Contains(prompt, "final_output") {
		t.Fatalf("expected prompt to instruct the final_output envelope, got: %s", prompt)
	}
}

func TestDefaultPromptBuilderIncludesKnowledgeOnlyWhenPresent(t *testing.T) {
	b := NewDefaultPromptBuilder()
	req := PromptRequest{
		Session:   &models.Session{Goal: "g"},
		Knowledge: []models.KnowledgeResult{{Title: "doc1", Snippet: "relevant text", Score: 0.9}},
	}

	prompt, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "doc1") {
		t.Fatalf("expected prompt to include knowledge hit, got: %s", prompt)
	}
}

func TestDefaultPromptBuilderRejectsMissingSession(t *testing.T) {
	b := NewDefaultPromptBuilder()
	if _, err := b.Build(context.Background(), PromptRequest{}); err == nil {
		t.Fatal("expected error when session is nil")
	}
}
