package looprunner

import (
	"testing"

	"github.com/kestrel-run/agentcore/pkg/models"
)

func TestParseFinishEnvelope(t *testing.T) {
	p := NewDefaultResponseParser()
	action, err := p.Parse(`<final_output>{"action":"Finish","reasoning":"done","finalResult":"ok"}</final_output>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	finish, ok := action.(models.FinishAction)
	if !ok {
		t.Fatalf("expected FinishAction, got %T", action)
	}
	if finish.FinalResult != "ok" {
		t.Fatalf("expected finalResult ok, got %q", finish.FinalResult)
	}
	if finish.Reasoning() != "done" {
		t.Fatalf("expected reasoning done, got %q", finish.Reasoning())
	}
}

func TestParseNormalizesSnakeCaseKeys(t *testing.T) {
	p := NewDefaultResponseParser()
	action, err := p.Parse(`<final_output>{"action":"AskUser","message_to_user":"need more info"}</final_output>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ask, ok := action.(models.AskUserAction)
	if !ok {
		t.Fatalf("expected AskUserAction, got %T", action)
	}
	if ask.MessageToUser != "need more info" {
		t.Fatalf("expected normalized messageToUser, got %q", ask.MessageToUser)
	}
}

func TestParseAcceptsCodeFencedJSON(t *testing.T) {
	p := NewDefaultResponseParser()
	action, err := p.Parse("Here is my decision:\n```json\n{\"action\":\"CallTool\",\"toolName\":\"echo\",\"params\":{\"text\":\"hi\"}}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call, ok := action.(models.CallToolAction)
	if !ok {
		t.Fatalf("expected CallToolAction, got %T", action)
	}
	if call.ToolName != "echo" {
		t.Fatalf("expected tool name echo, got %q", call.ToolName)
	}
}

func TestParseRejectsMissingEnvelope(t *testing.T) {
	p := NewDefaultResponseParser()
	if _, err := p.Parse("I am not sure what to do."); err == nil {
		t.Fatal("expected error for response with no final_output payload")
	}
}

func TestParseRejectsUnknownAction(t *testing.T) {
	p := NewDefaultResponseParser()
	if _, err := p.Parse(`<final_output>{"action":"Frobnicate"}</final_output>`); err == nil {
		t.Fatal("expected error for unrecognized action kind")
	}
}

func TestParseNestedSnakeCaseKeysInParallelAction(t *testing.T) {
	p := NewDefaultResponseParser()
	action, err := p.Parse(`<final_output>{"action":"CallToolsParallel","wait_strategy":"majority","tools":[{"tool_id":"a","tool_name":"echo","params":{}}]}</final_output>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parallel, ok := action.(models.CallToolsParallelAction)
	if !ok {
		t.Fatalf("expected CallToolsParallelAction, got %T", action)
	}
	if parallel.WaitStrategy != models.WaitMajority {
		t.Fatalf("expected majority wait strategy, got %q", parallel.WaitStrategy)
	}
	if len(parallel.Tools) != 1 || parallel.Tools[0].ToolID != "a" {
		t.Fatalf("expected one tool with id a, got %+v", parallel.Tools)
	}
}
