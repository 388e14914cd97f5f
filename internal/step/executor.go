// Package step implements the step executor (C8): given a session and a
// parsed action, it assigns the step its dense sequence number, dispatches
// to the right action handler, persists the resulting step record, and
// emits its lifecycle events.
package step

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/internal/fork"
	"github.com/kestrel-run/agentcore/internal/paralleltool"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// Store persists step records.
type Store interface {
	Create(ctx context.Context, step *models.Step) error
	Update(ctx context.Context, step *models.Step) error
	ListNonDiscarded(ctx context.Context, sessionID string) ([]*models.Step, error)
	MarkDiscarded(ctx context.Context, sessionID string, stepIDs []string) error
}

// ToolInvoker is C4, the tool executor.
type ToolInvoker interface {
	Execute(ctx context.Context, name string, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error)
}

// ParallelInvoker is C6, the parallel tool executor.
type ParallelInvoker interface {
	Execute(ctx context.Context, req paralleltool.Request, tc models.ToolContext) (*models.ParallelTally, []*models.ParallelToolCall, error)
}

// ForkInvoker is C7, the agent-fork subsystem.
type ForkInvoker interface {
	ForkAutoAgent(ctx context.Context, req fork.Request) (*models.ForkAgentTask, error)
}

// SessionUpdater lets the Finish handler mark the owning session
// completed without the step package depending on the full session
// manager.
type SessionUpdater interface {
	Complete(ctx context.Context, sessionID string, resultSummary string) error
}

// Result is what Execute hands back to the agent loop.
type Result struct {
	Step          *models.Step
	ShouldContinue bool
	WaitForUser   bool
	TaskIDs       []string // async tool task ids the loop may await via C5
}

// Executor dispatches parsed actions.
type Executor struct {
	store    Store
	tools    ToolInvoker
	parallel ParallelInvoker
	forker   ForkInvoker
	sessions SessionUpdater
	bus      *bus.Bus
}

// New returns a step Executor. parallel and forker may be nil: a nil
// parallel executor degrades CallToolsParallel to an error step; a nil
// forker falls back to creating nothing but still returns
// shouldContinue=true without blocking, per §4.8.
func New(store Store, tools ToolInvoker, parallel ParallelInvoker, forker ForkInvoker, sessions SessionUpdater, b *bus.Bus) *Executor {
	return &Executor{store: store, tools: tools, parallel: parallel, forker: forker, sessions: sessions, bus: b}
}

// Execute runs one step: assigns its number, dispatches the action, and
// persists the terminal record.
func (e *Executor) Execute(ctx context.Context, session *models.Session, action models.Action, llmPrompt, llmResponse string) (*Result, error) {
	stepNumber, err := e.nextStepNumber(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	st := &models.Step{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		StepNumber:  stepNumber,
		Action:      action.Kind(),
		Status:      models.StepPending,
		Reasoning:   action.Reasoning(),
		LLMPrompt:   llmPrompt,
		LLMResponse: llmResponse,
		CreatedAt:   now,
	}
	populateActionFields(st, action)

	if err := e.store.Create(ctx, st); err != nil {
		return nil, err
	}
	e.emit(ctx, models.EventStepStarted, session.ID, st.ID)

	st.Status = models.StepRunning
	st.StartedAt = time.Now()
	if err := e.store.Update(ctx, st); err != nil {
		return nil, err
	}

	res, dispatchErr := e.dispatch(ctx, session, st, action)

	completedAt := time.Now()
	st.CompletedAt = &completedAt
	if dispatchErr != nil {
		st.Status = models.StepFailed
		st.ErrorMessage = dispatchErr.Error()
		_ = e.store.Update(ctx, st)
		e.emit(ctx, models.EventStepFailed, session.ID, st.ID)
		if res == nil {
			res = &Result{Step: st, ShouldContinue: true}
		}
		res.Step = st
		return res, nil
	}

	st.Status = models.StepCompleted
	if err := e.store.Update(ctx, st); err != nil {
		return nil, err
	}
	e.emit(ctx, models.EventStepCompleted, session.ID, st.ID)

	if discardable := action.Discardable(); len(discardable) > 0 {
		if err := e.store.MarkDiscarded(ctx, session.ID, discardable); err == nil {
			e.emit(ctx, models.EventStepsDiscarded, session.ID, st.ID)
		}
	}

	res.Step = st
	return res, nil
}

func (e *Executor) nextStepNumber(ctx context.Context, sessionID string) (int, error) {
	existing, err := e.store.ListNonDiscarded(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(existing) + 1, nil
}

func populateActionFields(st *models.Step, action models.Action) {
	switch a := action.(type) {
	case models.CallToolAction:
		st.ToolName = a.ToolName
		st.Params = string(a.Params)
	case models.CallToolsParallelAction:
		st.Parallel = true
		st.WaitStrategy = a.WaitStrategy
	}
}

// dispatch routes action to the handler for its kind. A panic anywhere in
// that handler (including in a collaborator like the parallel tool
// executor or the forker) is recovered and turned into a failed step
// instead of crashing the process. The recovered Result has
// ShouldContinue false, so the agent loop then ends the session as failed.
func (e *Executor) dispatch(ctx context.Context, session *models.Session, st *models.Step, action models.Action) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = &Result{ShouldContinue: false}
			err = fmt.Errorf("step: panic dispatching action %q: %v\n%s", action.Kind(), r, debug.Stack())
		}
	}()
	return e.dispatchAction(ctx, session, st, action)
}

func (e *Executor) dispatchAction(ctx context.Context, session *models.Session, st *models.Step, action models.Action) (*Result, error) {
	tc := models.ToolContext{SessionID: session.ID, StepID: st.ID, UserID: session.UserID}

	switch a := action.(type) {
	case models.CallToolAction:
		result, err := e.tools.Execute(ctx, a.ToolName, a.Params, tc)
		if err != nil {
			return &Result{ShouldContinue: true}, err
		}
		b, _ := json.Marshal(result)
		st.ResultSummary = string(b)
		res := &Result{ShouldContinue: true}
		if result.TaskID != "" {
			res.TaskIDs = []string{result.TaskID}
		}
		return res, nil

	case models.CallToolsParallelAction:
		if e.parallel == nil {
			return &Result{ShouldContinue: true}, fmt.Errorf("step: no parallel tool executor configured")
		}
		specs := make([]paralleltool.Spec, len(a.Tools))
		for i, t := range a.Tools {
			specs[i] = paralleltool.Spec{ToolID: t.ToolID, ToolName: t.ToolName, Params: t.Params}
		}
		tally, _, err := e.parallel.Execute(ctx, paralleltool.Request{
			StepID: st.ID, SessionID: session.ID, Tools: specs,
			WaitStrategy: a.WaitStrategy,
			Timeout:      time.Duration(a.TimeoutMs) * time.Millisecond,
			MaxRetries:   a.MaxRetries,
		}, tc)
		if err != nil {
			return &Result{ShouldContinue: true}, err
		}
		b, _ := json.Marshal(tally)
		st.ResultSummary = string(b)
		return &Result{ShouldContinue: tally.ConditionMet}, nil

	case models.ForkAutoAgentAction:
		if e.forker == nil {
			// Fall back: no fork subsystem wired, create nothing further
			// and return shouldContinue=true without blocking, per §4.8.
			return &Result{ShouldContinue: true}, nil
		}
		task, err := e.forker.ForkAutoAgent(ctx, fork.Request{
			Goal: a.Goal, ContextSummary: a.ContextSummary,
			ParentSessionID: session.ID, ParentStepID: st.ID,
			CurrentDepth: session.Depth, MaxSteps: a.MaxSteps, TimeoutSeconds: a.TimeoutSeconds,
			UserID: session.UserID,
		})
		if err != nil {
			return &Result{ShouldContinue: true}, err
		}
		st.ResultSummary = fmt.Sprintf("forked sub-agent %s at depth %d", task.ID, task.Depth)
		return &Result{ShouldContinue: true}, nil

	case models.AskUserAction:
		e.emit(ctx, models.EventUserQuestionAsked, session.ID, a.MessageToUser)
		st.ResultSummary = a.MessageToUser
		return &Result{WaitForUser: true, ShouldContinue: false}, nil

	case models.PlanAction:
		e.emit(ctx, models.EventPlanReady, session.ID, string(a.Plan))
		st.ResultSummary = string(a.Plan)
		return &Result{ShouldContinue: true}, nil

	case models.FinishAction:
		st.ResultSummary = a.FinalResult
		if e.sessions != nil {
			if err := e.sessions.Complete(ctx, session.ID, a.FinalResult); err != nil {
				return &Result{ShouldContinue: false}, err
			}
		}
		e.emit(ctx, models.EventSessionCompleted, session.ID, a.FinalResult)
		return &Result{ShouldContinue: false}, nil

	default:
		return &Result{ShouldContinue: true}, fmt.Errorf("step: unknown action kind %q", action.Kind())
	}
}

func (e *Executor) emit(ctx context.Context, tag models.EventTag, sessionID string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now(), Payload: payload})
}
