package fork

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// SubAgentWorkflow is the name of the Temporal workflow the external
// adapter submits sub-agent execution to. The workflow itself lives in
// whatever worker binary is deployed alongside the runtime; this adapter
// only starts it and polls its result, per §4.7's "send an event to a
// durable job system; the job system later updates task status".
const SubAgentWorkflow = "SubAgentExecution"

// TemporalAdapter is the external execution adapter: it hands sub-agent
// execution to a Temporal workflow instead of running it in this process,
// so the parent process can restart without losing in-flight forks.
type TemporalAdapter struct {
	client    client.Client
	taskQueue string
	store     Store
}

// NewTemporalAdapter wraps an already-connected Temporal client.
func NewTemporalAdapter(c client.Client, taskQueue string, store Store) *TemporalAdapter {
	return &TemporalAdapter{client: c, taskQueue: taskQueue, store: store}
}

// SubAgentWorkflowInput is the payload handed to the Temporal workflow.
type SubAgentWorkflowInput struct {
	TaskID         string
	Goal           string
	ContextSummary string
	Depth          int
	StepCap        int
	TimeoutSeconds int
	UserID         string
	OrganizationID string
}

func (a *TemporalAdapter) ExecuteSubAgent(ctx context.Context, opts SubAgentOptions) error {
	workflowID := "subagent-" + opts.Task.ID
	_, err := a.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                a.taskQueue,
		WorkflowExecutionTimeout: time.Duration(opts.Task.TimeoutSeconds) * time.Second,
	}, SubAgentWorkflow, SubAgentWorkflowInput{
		TaskID:         opts.Task.ID,
		Goal:           opts.Task.Goal,
		ContextSummary: opts.Task.ContextSummary,
		Depth:          opts.Task.Depth,
		StepCap:        opts.Task.StepCap,
		TimeoutSeconds: opts.Task.TimeoutSeconds,
		UserID:         opts.UserID,
		OrganizationID: opts.OrganizationID,
	})
	if err != nil {
		return fmt.Errorf("fork: starting temporal workflow: %w", err)
	}

	opts.Task.Status = models.ForkRunning
	return a.store.Update(ctx, opts.Task)
}

// WaitForCompletion polls the task store, which the workflow (or a
// separate activity) is expected to update as it progresses — the
// workflow owns the durable side, this process only observes it.
func (a *TemporalAdapter) WaitForCompletion(ctx context.Context, taskID string, timeout time.Duration) (*models.ForkAgentTask, error) {
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
		case <-time.After(time.Second):
		}
	}
}

func (a *TemporalAdapter) CancelSubAgent(ctx context.Context, taskID string) error {
	return a.client.CancelWorkflow(ctx, "subagent-"+taskID, "")
}

func (a *TemporalAdapter) IsRunning(ctx context.Context, taskID string) (bool, error) {
	resp, err := a.client.DescribeWorkflowExecution(ctx, "subagent-"+taskID, "")
	if err != nil {
		return false, err
	}
	status := resp.GetWorkflowExecutionInfo().GetStatus()
	return status == 1, nil // WORKFLOW_EXECUTION_STATUS_RUNNING
}
