package models

import (
	"context"
	"encoding/json"
)

// RiskLevel classifies how much latitude a tool has before it should
// require confirmation from an interactive user.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ToolContext carries the ambient identifiers a handler needs without
// threading them through every parameter list.
type ToolContext struct {
	SessionID string
	StepID    string
	UserID    string
}

// ToolResult is the outcome of invoking a tool handler.
type ToolResult struct {
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Error      string `json:"error,omitempty"`
	CanRetry   bool   `json:"canRetry,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	// TaskID, when set, indicates the handler queued long-running work;
	// the step executor copies it into its Result.TaskIDs and finalizes
	// the step as usual.
	TaskID string `json:"taskId,omitempty"`
}

// HandlerFunc executes a tool synchronously.
type HandlerFunc func(ctx context.Context, params json.RawMessage, tc ToolContext) (*ToolResult, error)

// ErrorHandlerFunc lets a tool translate its own failures into a result
// instead of falling through to generic sanitization.
type ErrorHandlerFunc func(ctx context.Context, err error, params json.RawMessage, tc ToolContext) (*ToolResult, error)

// AsyncSubmitFunc starts long-running work and returns an external task id.
type AsyncSubmitFunc func(ctx context.Context, params json.RawMessage, tc ToolContext) (externalID string, err error)

// AsyncPollFunc checks on previously submitted work.
type AsyncPollFunc func(ctx context.Context, externalID string, tc ToolContext) (*AsyncPollOutcome, error)

// AsyncWebhookFunc interprets a webhook payload for previously submitted work.
type AsyncWebhookFunc func(ctx context.Context, externalID string, payload json.RawMessage, tc ToolContext) (*AsyncPollOutcome, error)

// AsyncPollOutcome is what a poll or webhook handler reports back.
type AsyncPollOutcome struct {
	Status AsyncStatus `json:"status"`
	Result any         `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// AsyncTriple groups the three callbacks an async tool descriptor carries.
type AsyncTriple struct {
	Submit    AsyncSubmitFunc
	Poll      AsyncPollFunc
	OnWebhook AsyncWebhookFunc
	Kind      AsyncKind
}

// ToolDescriptor is the immutable registration record for one tool.
type ToolDescriptor struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Version              string          `json:"version"`
	Category             string          `json:"category"`
	Risk                 RiskLevel       `json:"risk"`
	TimeoutSeconds        int             `json:"timeoutSeconds"`
	RequiresConfirmation bool            `json:"requiresConfirmation"`
	Async                bool            `json:"async"`
	EstimatedTimeSeconds int             `json:"estimatedTimeSeconds,omitempty"`
	ParamSchema          json.RawMessage `json:"paramSchema"`

	Handler      HandlerFunc      `json:"-"`
	ErrorHandler ErrorHandlerFunc `json:"-"`
	AsyncOps     *AsyncTriple     `json:"-"`
}

// SchemaProjection is the prompt-facing view of a descriptor: name,
// description, and just enough of the schema for the model to construct a
// call, with handlers and other non-serializable fields stripped.
type SchemaProjection struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Properties  json.RawMessage `json:"properties,omitempty"`
	Required    []string        `json:"required,omitempty"`
}
