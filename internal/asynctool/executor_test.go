package asynctool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kestrel-run/agentcore/internal/cache"
	"github.com/kestrel-run/agentcore/pkg/models"
)

func pollingDescriptor(submit func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error), poll func(ctx context.Context, externalID string, tc models.ToolContext) (*models.AsyncPollOutcome, error)) *models.ToolDescriptor {
	return &models.ToolDescriptor{
		Name: "long_job", Async: true,
		AsyncOps: &models.AsyncTriple{Submit: submit, Poll: poll, Kind: models.AsyncPolling},
	}
}

func TestExecuteAsyncSubmitAndPoll(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 0)

	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) {
			return "ext-123", nil
		},
		func(ctx context.Context, externalID string, tc models.ToolContext) (*models.AsyncPollOutcome, error) {
			return &models.AsyncPollOutcome{Status: models.AsyncCompleted, Result: map[string]any{"output": "x"}}, nil
		},
	)

	taskID, err := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}

	task, err := ex.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != models.AsyncRunning {
		t.Fatalf("expected running after submit, got %s", task.Status)
	}

	if err := ex.PollTask(context.Background(), taskID, desc, models.ToolContext{}); err != nil {
		t.Fatal(err)
	}

	task, err = ex.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != models.AsyncCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	result := task.ToToolResult()
	if !result.Success {
		t.Fatalf("expected success result, got %+v", result)
	}
}

func TestPollNoOpOnTerminalTask(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 0)
	pollCount := 0
	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) { return "e", nil },
		func(ctx context.Context, externalID string, tc models.ToolContext) (*models.AsyncPollOutcome, error) {
			pollCount++
			return &models.AsyncPollOutcome{Status: models.AsyncCompleted}, nil
		},
	)
	taskID, _ := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{})
	_ = ex.PollTask(context.Background(), taskID, desc, models.ToolContext{})
	_ = ex.PollTask(context.Background(), taskID, desc, models.ToolContext{}) // spurious re-poll
	if pollCount != 1 {
		t.Fatalf("expected poll to be a no-op once terminal, got %d calls", pollCount)
	}
}

func TestSubmitFailurePersistsFailedTask(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 0)
	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) {
			return "", errServerUnavailable
		},
		nil,
	)
	taskID, err := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{})
	if err == nil {
		t.Fatal("expected submit error to propagate")
	}
	task, getErr := ex.GetTask(context.Background(), taskID)
	if getErr != nil {
		t.Fatal(getErr)
	}
	if task.Status != models.AsyncFailed {
		t.Fatalf("expected failed status, got %s", task.Status)
	}
}

func TestCancelMarksFailed(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 0)
	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) { return "e", nil },
		nil,
	)
	taskID, _ := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{})
	if err := ex.Cancel(context.Background(), taskID); err != nil {
		t.Fatal(err)
	}
	task, _ := ex.GetTask(context.Background(), taskID)
	if task.Status != models.AsyncFailed || task.Error != "cancelled" {
		t.Fatalf("expected cancelled task, got %+v", task)
	}
}

func TestTasksBySessionAndNonTerminal(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 0)
	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) { return "e", nil },
		func(ctx context.Context, externalID string, tc models.ToolContext) (*models.AsyncPollOutcome, error) {
			return &models.AsyncPollOutcome{Status: models.AsyncCompleted}, nil
		},
	)

	idA, _ := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{SessionID: "a"})
	idB, _ := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{SessionID: "b"})
	_ = ex.PollTask(context.Background(), idB, desc, models.ToolContext{})

	sessionA, err := ex.TasksBySession(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessionA) != 1 || sessionA[0].ID != idA {
		t.Fatalf("expected only session a's task, got %+v", sessionA)
	}

	pending, err := ex.NonTerminalTasks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != idA {
		t.Fatalf("expected only the still-running task, got %+v", pending)
	}
}

var errServerUnavailable = &testErr{"server unavailable"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestPollTaskRetriesOnError(t *testing.T) {
	c := cache.NewMemory()
	ex := New(c, nil, 0, 2)
	attempts := 0
	desc := pollingDescriptor(
		func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (string, error) { return "e", nil },
		func(ctx context.Context, externalID string, tc models.ToolContext) (*models.AsyncPollOutcome, error) {
			attempts++
			return nil, errServerUnavailable
		},
	)
	taskID, _ := ex.ExecuteAsync(context.Background(), desc, nil, models.ToolContext{})

	_ = ex.PollTask(context.Background(), taskID, desc, models.ToolContext{})
	task, _ := ex.GetTask(context.Background(), taskID)
	if task.Status.Terminal() {
		t.Fatalf("expected still running after one failed poll, got %s", task.Status)
	}

	_ = ex.PollTask(context.Background(), taskID, desc, models.ToolContext{})
	task, _ = ex.GetTask(context.Background(), taskID)
	if task.Status != models.AsyncFailed {
		t.Fatalf("expected failed after exhausting retries, got %s", task.Status)
	}
}
