package models

import "encoding/json"

// Action is the sealed set of decisions a model can return from a step.
// The step executor dispatches exhaustively over the six concrete kinds;
// Kind() lets it do so without a type switch on every call site.
type Action interface {
	Kind() ActionKind
	Reasoning() string
	Discardable() []string
}

type actionBase struct {
	ReasoningText     string   `json:"reasoning,omitempty"`
	DiscardableSteps  []string `json:"discardableSteps,omitempty"`
}

func (a actionBase) Reasoning() string      { return a.ReasoningText }
func (a actionBase) Discardable() []string  { return a.DiscardableSteps }

// CallToolAction invokes a single named tool.
type CallToolAction struct {
	actionBase
	ToolName string          `json:"toolName"`
	Params   json.RawMessage `json:"params"`
}

func (CallToolAction) Kind() ActionKind { return ActionCallTool }

// ParallelToolSpec is one member of a CallToolsParallelAction fan-out.
type ParallelToolSpec struct {
	ToolID   string          `json:"toolId"`
	ToolName string          `json:"toolName"`
	Params   json.RawMessage `json:"params"`
}

// CallToolsParallelAction invokes several tools concurrently.
type CallToolsParallelAction struct {
	actionBase
	Tools        []ParallelToolSpec `json:"tools"`
	WaitStrategy WaitStrategy       `json:"waitStrategy"`
	TimeoutMs    int                `json:"timeoutMs,omitempty"`
	MaxRetries   int                `json:"maxRetries,omitempty"`
}

func (CallToolsParallelAction) Kind() ActionKind { return ActionCallToolsParallel }

// ForkAutoAgentAction spawns a bounded-depth sub-agent.
type ForkAutoAgentAction struct {
	actionBase
	Goal            string `json:"goal"`
	ContextSummary  string `json:"contextSummary,omitempty"`
	MaxSteps        int    `json:"maxSteps,omitempty"`
	TimeoutSeconds  int    `json:"timeoutSeconds,omitempty"`
}

func (ForkAutoAgentAction) Kind() ActionKind { return ActionForkAutoAgent }

// AskUserAction pauses the interactive loop for a user answer.
type AskUserAction struct {
	actionBase
	MessageToUser string `json:"messageToUser"`
}

func (AskUserAction) Kind() ActionKind { return ActionAskUser }

// PlanAction publishes a structured plan without pausing the loop.
type PlanAction struct {
	actionBase
	Plan json.RawMessage `json:"plan"`
}

func (PlanAction) Kind() ActionKind { return ActionPlan }

// FinishAction declares the goal achieved.
type FinishAction struct {
	actionBase
	FinalResult string `json:"finalResult"`
}

func (FinishAction) Kind() ActionKind { return ActionFinish }
