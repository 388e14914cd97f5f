package models

import "time"

// StepStatus is the lifecycle state of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// ActionKind discriminates the six decisions a model can make in a step.
type ActionKind string

const (
	ActionCallTool          ActionKind = "CallTool"
	ActionCallToolsParallel ActionKind = "CallToolsParallel"
	ActionForkAutoAgent     ActionKind = "ForkAutoAgent"
	ActionAskUser           ActionKind = "AskUser"
	ActionPlan              ActionKind = "Plan"
	ActionFinish            ActionKind = "Finish"
)

// Step is one model decision and its execution.
//
// Invariant: within a session, exactly one non-discarded step exists per
// StepNumber; a step transitions into StepRunning at most once;
// CompletedAt, when set, is not before StartedAt.
type Step struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	StepNumber int        `json:"stepNumber"`
	Action     ActionKind `json:"action"`
	Status     StepStatus `json:"status"`
	Discarded  bool       `json:"discarded"`

	Parallel      bool         `json:"parallel,omitempty"`
	WaitStrategy  WaitStrategy `json:"waitStrategy,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
	Params    string `json:"params,omitempty"` // raw JSON

	LLMPrompt   string `json:"llmPrompt,omitempty"`
	LLMResponse string `json:"llmResponse,omitempty"`

	ResultSummary string `json:"resultSummary,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`

	StartedAt   time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
