package models

import (
	"encoding/json"
	"time"
)

// WaitStrategy selects which predicate over completed children finishes a
// parallel tool batch.
type WaitStrategy string

const (
	WaitAll      WaitStrategy = "all"
	WaitAny      WaitStrategy = "any"
	WaitMajority WaitStrategy = "majority"
)

// ParallelStatus is the lifecycle state of one child of a parallel batch.
type ParallelStatus string

const (
	ParallelPending   ParallelStatus = "pending"
	ParallelRunning   ParallelStatus = "running"
	ParallelCompleted ParallelStatus = "completed"
	ParallelFailed    ParallelStatus = "failed"
	ParallelTimeout   ParallelStatus = "timeout"
)

// Terminal reports whether the status is sticky.
func (s ParallelStatus) Terminal() bool {
	return s == ParallelCompleted || s == ParallelFailed || s == ParallelTimeout
}

// ParallelToolCall is one child of a CallToolsParallel step.
//
// Invariant: ToolID is unique within the owning step; once Status reaches a
// terminal value it never changes again.
type ParallelToolCall struct {
	ID         string          `json:"id"`
	StepID     string          `json:"stepId"`
	ToolID     string          `json:"toolId"`
	ToolName   string          `json:"toolName"`
	Params     json.RawMessage `json:"params"`
	Status     ParallelStatus  `json:"status"`
	Result     string          `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   int             `json:"progress"`
	RetryCount int             `json:"retryCount"`
	RetryCap   int             `json:"retryCap"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ParallelTally summarizes a finished or timed-out batch.
type ParallelTally struct {
	ConditionMet bool     `json:"conditionMet"`
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	TotalCount   int      `json:"totalCount"`
	Completed    []string `json:"completed"`
	Failed       []string `json:"failed"`
	Pending      []string `json:"pending"`
}
