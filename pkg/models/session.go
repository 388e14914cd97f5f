// Package models holds the data shapes shared across the agent runtime:
// sessions, steps, tool calls, fork tasks, async tasks, and the stop state
// snapshot. None of these types carry behavior beyond small invariants —
// the components in internal/ own the state machines that mutate them.
package models

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// AgentKind selects which loop variant drives a session.
type AgentKind string

const (
	AgentInteractive AgentKind = "interactive"
	AgentAutonomous  AgentKind = "autonomous"
)

// Session is one user goal and its entire execution trace.
//
// Invariants: a session with a non-empty ParentSessionID has
// Depth == parent.Depth+1; a session in SessionStopped or SessionPaused
// may be resumed only if StopState.CanResume is true; SessionCompleted and
// SessionFailed are terminal.
type Session struct {
	ID       string        `json:"id"`
	UserID   string        `json:"userId"`
	Goal     string        `json:"goal"`
	Status   SessionStatus `json:"status"`
	Kind     AgentKind     `json:"kind"`
	Depth    int           `json:"depth"`
	ParentSessionID       string `json:"parentSessionId,omitempty"`
	ParentStepID          string `json:"parentStepId,omitempty"`
	InheritedContext      string `json:"inheritedContext,omitempty"`
	LastCompressedStepID  int    `json:"lastCompressedStepId"`

	IsRunning     bool `json:"isRunning"`
	IsDeleted     bool `json:"isDeleted"`
	IsCompressing bool `json:"isCompressing"`

	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Resumable reports whether a terminated session can be restarted, per the
// stop state that was saved when it stopped.
func (s *Session) Resumable(stop *StopState) bool {
	if s.Status != SessionStopped && s.Status != SessionPaused {
		return false
	}
	return stop != nil && stop.CanResume
}
