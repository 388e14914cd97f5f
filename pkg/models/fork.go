package models

import "time"

// ForkStatus is the lifecycle state of a sub-agent task.
type ForkStatus string

const (
	ForkPending   ForkStatus = "pending"
	ForkRunning   ForkStatus = "running"
	ForkCompleted ForkStatus = "completed"
	ForkFailed    ForkStatus = "failed"
	ForkTimeout   ForkStatus = "timeout"
)

func (s ForkStatus) Terminal() bool {
	return s == ForkCompleted || s == ForkFailed || s == ForkTimeout
}

// ForkAgentTask is a child of a parent step that spawns a bounded-depth
// sub-session.
//
// Invariant: Depth <= the subsystem's configured maxDepth.
type ForkAgentTask struct {
	ID             string     `json:"id"`
	ParentSessionID string    `json:"parentSessionId"`
	ParentStepID    string    `json:"parentStepId"`
	SubSessionID    string    `json:"subSessionId,omitempty"`

	Goal           string     `json:"goal"`
	ContextSummary string     `json:"contextSummary,omitempty"`
	Depth          int        `json:"depth"`
	StepCap        int        `json:"stepCap"`
	TimeoutSeconds int        `json:"timeoutSeconds"`

	Status        ForkStatus `json:"status"`
	ResultSummary string     `json:"resultSummary,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`

	StepsExecuted int `json:"stepsExecuted"`
	TokensUsed    int `json:"tokensUsed"`
	ToolCalls     int `json:"toolCalls"`

	RetryCount int `json:"retryCount"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}
