package models

import "time"

// EventTag is the discriminant of a published event. The full taxonomy is
// fixed by the runtime's external interface contract; components publish
// only the tags listed here.
type EventTag string

const (
	EventSessionCreated   EventTag = "session:created"
	EventSessionUpdated   EventTag = "session:updated"
	EventSessionDeleted   EventTag = "session:deleted"
	EventSessionResumed   EventTag = "session:resumed"
	EventSessionCompleted EventTag = "session:completed"

	EventPlanReady EventTag = "plan:ready"

	EventStepStarted   EventTag = "step:started"
	EventStepCompleted EventTag = "step:completed"
	EventStepFailed    EventTag = "step:failed"
	EventStepsDiscarded EventTag = "steps:discarded"

	EventToolExecuting             EventTag = "tool:executing"
	EventToolRequiresConfirmation  EventTag = "tool:requiresConfirmation"
	EventToolCompleted             EventTag = "tool:completed"
	EventToolFailed                EventTag = "tool:failed"

	EventToolAsyncSubmitted EventTag = "tool:async:submitted"
	EventToolAsyncRunning   EventTag = "tool:async:running"
	EventToolAsyncProgress  EventTag = "tool:async:progress"
	EventToolAsyncCompleted EventTag = "tool:async:completed"
	EventToolAsyncError     EventTag = "tool:async:error"
	EventToolAsyncCancelled EventTag = "tool:async:cancelled"

	EventToolsParallelSubmitted EventTag = "tools:parallel:submitted"
	EventToolsParallelReady     EventTag = "tools:parallel:ready"

	EventToolParallelStarted   EventTag = "tool:parallel:started"
	EventToolParallelCompleted EventTag = "tool:parallel:completed"
	EventToolParallelFailed    EventTag = "tool:parallel:failed"
	EventToolParallelCancelled EventTag = "tool:parallel:cancelled"

	EventLLMStarted   EventTag = "llm:started"
	EventLLMStreaming EventTag = "llm:streaming"
	EventLLMComplete  EventTag = "llm:complete"
	EventLLMError     EventTag = "llm:error"

	EventProgressUpdated EventTag = "progress:updated"

	EventTaskStarted         EventTag = "task:started"
	EventTaskStopping        EventTag = "task:stopping"
	EventTaskStopped         EventTag = "task:stopped"
	EventTaskCompleted       EventTag = "task:completed"
	EventTaskFailed          EventTag = "task:failed"
	EventTaskTimeout         EventTag = "task:timeout"
	EventTaskMaxStepsReached EventTag = "task:maxStepsReached"

	EventSubagentStarted   EventTag = "subagent:started"
	EventSubagentProgress  EventTag = "subagent:progress"
	EventSubagentCompleted EventTag = "subagent:completed"
	EventSubagentFailed    EventTag = "subagent:failed"

	EventKnowledgeSearching EventTag = "knowledge:searching"
	EventKnowledgeFound     EventTag = "knowledge:found"
	EventKnowledgeError     EventTag = "knowledge:error"

	EventUserQuestionAsked EventTag = "user:questionAsked"
)

// Event is one item published on the bus. Payload is whatever shape the
// publishing component documents for that Tag; listeners type-assert it.
type Event struct {
	Tag       EventTag  `json:"tag"`
	SessionID string    `json:"sessionId,omitempty"`
	Time      time.Time `json:"time"`
	Payload   any       `json:"payload,omitempty"`
}
