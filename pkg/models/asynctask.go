package models

import "time"

// AsyncKind distinguishes how an async tool's state gets updated.
type AsyncKind string

const (
	AsyncPolling AsyncKind = "polling"
	AsyncWebhook AsyncKind = "webhook"
)

// AsyncStatus is the lifecycle state of an async tool task.
type AsyncStatus string

const (
	AsyncPending   AsyncStatus = "pending"
	AsyncRunning   AsyncStatus = "running"
	AsyncCompleted AsyncStatus = "completed"
	AsyncFailed    AsyncStatus = "failed"
	AsyncTimeout   AsyncStatus = "timeout"
)

func (s AsyncStatus) Terminal() bool {
	return s == AsyncCompleted || s == AsyncFailed || s == AsyncTimeout
}

// AsyncToolTask tracks one long-running external job.
type AsyncToolTask struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"toolName"`
	Params     string          `json:"params"`
	SessionID  string          `json:"sessionId"`
	StepID     string          `json:"stepId"`
	ExternalID string          `json:"externalId,omitempty"`
	Status     AsyncStatus     `json:"status"`
	Kind       AsyncKind       `json:"kind"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	LastPollAt           time.Time `json:"lastPollAt,omitempty"`
	RetryCount           int       `json:"retryCount"`
	MaxRetries           int       `json:"maxRetries"`
	EstimatedDurationSec int       `json:"estimatedDurationSeconds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToToolResult maps a terminal async task to the synchronous result shape
// the step executor and loop already know how to consume. Timeout is
// reported as retryable, mirroring a transient-external failure.
func (t *AsyncToolTask) ToToolResult() *ToolResult {
	switch t.Status {
	case AsyncCompleted:
		return &ToolResult{Success: true, Result: t.Result}
	case AsyncTimeout:
		return &ToolResult{Success: false, Error: "async task timed out", CanRetry: true}
	default:
		return &ToolResult{Success: false, Error: t.Error, CanRetry: false}
	}
}
