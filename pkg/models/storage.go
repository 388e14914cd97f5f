package models

import "time"

// TodoStatus is the lifecycle state of one plan item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoDone       TodoStatus = "done"
)

// Todo is one item of a Plan action's structured todo list, persisted so a
// resumed session can show what was already decided.
type Todo struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	StepID    string     `json:"stepId,omitempty"`
	Title     string     `json:"title"`
	Status    TodoStatus `json:"status"`
	Position  int        `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Checkpoint is a point-in-time snapshot of a session's compressed history,
// written so a long-running session can resume without replaying every
// non-discarded step.
type Checkpoint struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	StepNumber    int       `json:"stepNumber"`
	Summary       string    `json:"summary"`
	TokensAtCheck int       `json:"tokensAtCheck"`
	CreatedAt     time.Time `json:"createdAt"`
}
