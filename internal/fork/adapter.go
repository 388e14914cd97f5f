package fork

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// SubAgentOptions is what ExecuteSubAgent needs to start a task: the
// persisted task record plus the identifiers the runner needs to attach
// billing/ownership context.
type SubAgentOptions struct {
	Task           *models.ForkAgentTask
	UserID         string
	OrganizationID string
}

// RunFunc drives one sub-agent's autonomous execution to completion. It is
// supplied by whatever assembles the runtime (the demo CLI, a test), not
// owned by this package — the inversion that keeps fork from importing
// the loop.
type RunFunc func(ctx context.Context, task *models.ForkAgentTask, opts SubAgentOptions) (*models.TaskResult, error)

// ExecutionAdapter is the collaborator interface for sub-agent execution
// (§6): two implementations exist, in-process and external/durable.
type ExecutionAdapter interface {
	ExecuteSubAgent(ctx context.Context, opts SubAgentOptions) error
	WaitForCompletion(ctx context.Context, taskID string, timeout time.Duration) (*models.ForkAgentTask, error)
	CancelSubAgent(ctx context.Context, taskID string) error
	IsRunning(ctx context.Context, taskID string) (bool, error)
}

// InProcessAdapter spawns the autonomous loop in a background goroutine
// and updates the task's status in Store as it progresses. This is the
// default: single-process deployments need nothing more.
type InProcessAdapter struct {
	store  Store
	run    RunFunc
	cancel map[string]context.CancelFunc
}

// NewInProcessAdapter returns an adapter that stores progress in store and
// drives execution via run.
func NewInProcessAdapter(store Store, run RunFunc) *InProcessAdapter {
	return &InProcessAdapter{store: store, run: run, cancel: make(map[string]context.CancelFunc)}
}

func (a *InProcessAdapter) ExecuteSubAgent(ctx context.Context, opts SubAgentOptions) error {
	runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Task.TimeoutSeconds)*time.Second)
	a.cancel[opts.Task.ID] = cancel

	opts.Task.Status = models.ForkRunning
	if err := a.store.Update(ctx, opts.Task); err != nil {
		cancel()
		return err
	}

	go func() {
		defer cancel()
		result, err := a.run(runCtx, opts.Task, opts)
		task, getErr := a.store.Get(context.Background(), opts.Task.ID)
		if getErr != nil {
			return
		}
		if task.Status.Terminal() {
			return // cancelled or otherwise finalized while running
		}
		now := time.Now()
		task.EndedAt = &now
		switch {
		case err != nil && runCtx.Err() != nil:
			task.Status = models.ForkTimeout
			task.ErrorMessage = "sub-agent execution deadline exceeded"
		case err != nil:
			task.Status = models.ForkFailed
			task.ErrorMessage = err.Error()
		default:
			task.Status = models.ForkCompleted
			if result != nil {
				task.ResultSummary = result.FinalResult
				task.StepsExecuted = result.StepsExecuted
			}
		}
		_ = a.store.Update(context.Background(), task)
	}()

	return nil
}

func (a *InProcessAdapter) WaitForCompletion(ctx context.Context, taskID string, timeout time.Duration) (*models.ForkAgentTask, error) {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Now().Add(24 * time.Hour)
	}
	for {
		task, err := a.store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("fork: timed out waiting for task %q", taskID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (a *InProcessAdapter) CancelSubAgent(ctx context.Context, taskID string) error {
	if cancel, ok := a.cancel[taskID]; ok {
		cancel()
	}
	return nil
}

func (a *InProcessAdapter) IsRunning(ctx context.Context, taskID string) (bool, error) {
	task, err := a.store.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.Status == models.ForkRunning || task.Status == models.ForkPending, nil
}
