// Package fork implements the agent-fork subsystem (C7): bounded-depth
// sub-agent tasks with inherited-context and result compression. The
// actual sub-agent execution is delegated to an ExecutionAdapter so this
// package never imports the agent loop — avoiding a fork→loop→step→fork
// import cycle, the same inversion the teacher uses for its confirmation
// and prompt-building callbacks.
package fork

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// Store persists fork-agent-task records.
type Store interface {
	Create(ctx context.Context, task *models.ForkAgentTask) error
	Update(ctx context.Context, task *models.ForkAgentTask) error
	Get(ctx context.Context, id string) (*models.ForkAgentTask, error)
	ListBySession(ctx context.Context, parentSessionID string) ([]*models.ForkAgentTask, error)
}

// SessionLookup resolves the parent-session back-reference walk that
// GetParentSession needs, without fork owning a full session store
// dependency.
type SessionLookup interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
}

// Summarizer asks an LLM for a bounded summary of text. It is used for
// both inbound context compression and outbound result compression.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLen int) (string, error)
}

// Config tunes the subsystem's bounds.
type Config struct {
	MaxDepth             int
	CompressionThreshold int // compress context/result longer than this many chars
	DefaultMaxSteps      int
	DefaultTimeoutSec    int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{MaxDepth: 3, CompressionThreshold: 500, DefaultMaxSteps: 20, DefaultTimeoutSec: 300}
}

// Subsystem drives fork-agent-task creation, submission, and result
// retrieval.
type Subsystem struct {
	store      Store
	sessions   SessionLookup
	summarizer Summarizer
	adapter    ExecutionAdapter
	bus        *bus.Bus
	config     Config
}

// New returns a Subsystem. summarizer may be nil, in which case
// compression always falls back to truncation.
func New(store Store, sessions SessionLookup, summarizer Summarizer, adapter ExecutionAdapter, b *bus.Bus, config Config) *Subsystem {
	if config.MaxDepth <= 0 {
		config = DefaultConfig()
	}
	return &Subsystem{store: store, sessions: sessions, summarizer: summarizer, adapter: adapter, bus: b, config: config}
}

// Request describes a ForkAutoAgent action's parameters.
type Request struct {
	Goal              string
	ContextSummary    string
	ParentSessionID   string
	ParentStepID      string
	CurrentDepth      int
	MaxSteps          int
	TimeoutSeconds    int
	UserID            string
	OrganizationID    string
}

// ErrMaxDepthExceeded is returned when forking would exceed the
// subsystem's configured maxDepth.
var ErrMaxDepthExceeded = errors.New("fork: maximum fork depth exceeded")

// ForkAutoAgent creates and submits a bounded-depth sub-agent task. It
// never blocks on the sub-agent's execution; callers await completion via
// WaitForSubAgent.
func (s *Subsystem) ForkAutoAgent(ctx context.Context, req Request) (*models.ForkAgentTask, error) {
	depth := req.CurrentDepth + 1
	if depth > s.config.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds maxDepth %d", ErrMaxDepthExceeded, depth, s.config.MaxDepth)
	}

	contextSummary := s.compress(ctx, req.ContextSummary, s.config.CompressionThreshold)

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = s.config.DefaultMaxSteps
	}
	timeoutSec := req.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = s.config.DefaultTimeoutSec
	}

	now := time.Now()
	task := &models.ForkAgentTask{
		ID:              uuid.NewString(),
		ParentSessionID: req.ParentSessionID,
		ParentStepID:    req.ParentStepID,
		Goal:            req.Goal,
		ContextSummary:  contextSummary,
		Depth:           depth,
		StepCap:         maxSteps,
		TimeoutSeconds:  timeoutSec,
		Status:          models.ForkPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventSubagentStarted, req.ParentSessionID, task.ID)

	if err := s.adapter.ExecuteSubAgent(ctx, SubAgentOptions{
		Task:           task,
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
	}); err != nil {
		task.Status = models.ForkFailed
		task.ErrorMessage = err.Error()
		_ = s.store.Update(ctx, task)
		return task, err
	}

	return task, nil
}

// WaitForSubAgent blocks (subject to ctx) until taskID reaches a terminal
// state, returning its compressed result for Completed tasks or an error
// carrying the task's error message for Failed/Timeout.
func (s *Subsystem) WaitForSubAgent(ctx context.Context, taskID string, timeout time.Duration) (string, error) {
	task, err := s.adapter.WaitForCompletion(ctx, taskID, timeout)
	if err != nil {
		return "", err
	}
	switch task.Status {
	case models.ForkCompleted:
		return s.compress(ctx, task.ResultSummary, s.config.CompressionThreshold), nil
	case models.ForkTimeout:
		return "", fmt.Errorf("fork: sub-agent task %q timed out", taskID)
	default:
		return "", fmt.Errorf("fork: sub-agent task %q failed: %s", taskID, task.ErrorMessage)
	}
}

// CompressResult applies the same compression policy as inbound context
// to a sub-agent's result. Results are stored uncompressed; WaitForSubAgent
// applies this policy to the result it returns.
func (s *Subsystem) CompressResult(ctx context.Context, result string, maxLen int) string {
	return s.compress(ctx, result, maxLen)
}

func (s *Subsystem) compress(ctx context.Context, text string, threshold int) string {
	if len(text) <= threshold {
		return text
	}
	if s.summarizer != nil {
		if summary, err := s.summarizer.Summarize(ctx, text, threshold); err == nil {
			return summary
		}
	}
	return text[:threshold] + "…"
}

// GetSubAgents lists fork tasks spawned from parentSessionID.
func (s *Subsystem) GetSubAgents(ctx context.Context, parentSessionID string) ([]*models.ForkAgentTask, error) {
	return s.store.ListBySession(ctx, parentSessionID)
}

// GetParentSession walks a sub-session's back-reference to its parent.
func (s *Subsystem) GetParentSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	if session.ParentSessionID == "" {
		return nil, nil
	}
	return s.sessions.Get(ctx, session.ParentSessionID)
}

// CancelSubAgent marks task failed and asks the execution adapter to
// propagate cancellation to the underlying work.
func (s *Subsystem) CancelSubAgent(ctx context.Context, taskID string) error {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if err := s.adapter.CancelSubAgent(ctx, taskID); err != nil {
		return err
	}
	task.Status = models.ForkFailed
	task.ErrorMessage = "cancelled"
	return s.store.Update(ctx, task)
}

func (s *Subsystem) emit(ctx context.Context, tag models.EventTag, sessionID, taskID string) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now(), Payload: map[string]any{"taskId": taskID}})
}
