// Package looprunner implements the agent loop (C10): the interactive and
// autonomous loop variants that drive a session from its goal to a terminal
// status, one step at a time, built on top of the stop controller, step
// executor, and event bus.
package looprunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/internal/step"
	"github.com/kestrel-run/agentcore/internal/stopctl"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// LLMClient is the collaborator interface for model calls. Streaming
// callers get chunks via onChunk as they arrive; the final LLMResponse is
// still returned once the stream completes.
type LLMClient interface {
	Call(ctx context.Context, prompt string, opts models.CallOptions) (*models.LLMResponse, error)
	CallStreaming(ctx context.Context, prompt string, opts models.CallOptions, onChunk func(models.LLMChunk)) (*models.LLMResponse, error)
	CountTokens(text string) int
	Capabilities() models.LLMCapabilities
}

// PromptRequest is everything PromptBuilder.Build needs to construct one
// step's prompt.
type PromptRequest struct {
	Session         *models.Session
	Tools           []models.SchemaProjection
	History         []*models.Step
	Knowledge       []models.KnowledgeResult // only populated for step 0 of an autonomous run
	StepNumber      int
	AutoRun         bool
}

// PromptBuilder constructs the text sent to the LLM for one step.
type PromptBuilder interface {
	Build(ctx context.Context, req PromptRequest) (string, error)
}

// ResponseParser extracts the model's chosen action from its raw response
// text, carried in the loop's <final_output>{JSON}</final_output> wire
// envelope. DefaultResponseParser also accepts a fenced or bare JSON object
// when the envelope is absent.
type ResponseParser interface {
	Parse(response string) (models.Action, error)
}

// KnowledgeSearcher backs the autonomous loop's step-0 knowledge lookup.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.KnowledgeResult, error)
}

// ToolCallPreview is what a confirmation handler inspects before letting an
// interactive step's tool call(s) proceed.
type ToolCallPreview struct {
	Step   *models.Step
	Action models.Action
}

// ConfirmationHandler gates interactive tool calls and AskUser pauses on
// human approval.
type ConfirmationHandler func(ctx context.Context, preview ToolCallPreview) (bool, error)

// SessionUpdater is the narrow session-state surface the loop needs; a
// *sessionmgr.Manager satisfies it.
type SessionUpdater interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
}

// HistoryLister gives the prompt builder access to prior steps.
type HistoryLister interface {
	ListNonDiscarded(ctx context.Context, sessionID string) ([]*models.Step, error)
}

// Options configures one Run invocation.
type Options struct {
	Tools               []models.SchemaProjection
	MaxSteps            int
	Timeout             time.Duration
	KnowledgeTopK       int
	ConfirmationHandler ConfirmationHandler // required for interactive sessions
}

const (
	defaultMaxSteps      = 25
	defaultTimeout        = 10 * time.Minute
	defaultKnowledgeTopK = 5
)

// Runner drives sessions through the shared loop skeleton.
type Runner struct {
	llm        LLMClient
	prompts    PromptBuilder
	parser     ResponseParser
	knowledge  KnowledgeSearcher // may be nil: autonomous knowledge search is then skipped
	sessions   SessionUpdater
	history    HistoryLister
	stepExec   *step.Executor
	stopCtl    *stopctl.Controller
	bus        *bus.Bus
}

// New returns a Runner. knowledge may be nil.
func New(llm LLMClient, prompts PromptBuilder, parser ResponseParser, knowledge KnowledgeSearcher, sessions SessionUpdater, history HistoryLister, stepExec *step.Executor, stopCtl *stopctl.Controller, b *bus.Bus) *Runner {
	return &Runner{
		llm: llm, prompts: prompts, parser: parser, knowledge: knowledge,
		sessions: sessions, history: history, stepExec: stepExec, stopCtl: stopCtl, bus: b,
	}
}

// Run drives session to a terminal TaskResult, dispatching on
// session.Kind to select the interactive or autonomous variant.
func (r *Runner) Run(ctx context.Context, session *models.Session, opts Options) (*models.TaskResult, error) {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.KnowledgeTopK <= 0 {
		opts.KnowledgeTopK = defaultKnowledgeTopK
	}
	interactive := session.Kind == models.AgentInteractive
	if interactive && opts.ConfirmationHandler == nil {
		return nil, errors.New("looprunner: interactive sessions require a ConfirmationHandler")
	}

	r.stopCtl.Reset()
	start := time.Now()
	currentStep := 0

	for {
		if time.Since(start) > opts.Timeout {
			r.emit(ctx, models.EventTaskTimeout, session.ID, nil)
			_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionFailed)
			return &models.TaskResult{Status: models.SessionFailed, StepsExecuted: currentStep, Error: "task timeout", CanResume: false}, nil
		}

		if r.stopCtl.ShouldStop() {
			_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionPaused)
			r.emit(ctx, models.EventTaskStopped, session.ID, nil)
			stopState := r.stopCtl.GetStopState()
			return &models.TaskResult{Status: models.SessionStopped, StepsExecuted: currentStep, CanResume: stopState == nil || stopState.CanResume}, nil
		}

		var knowledge []models.KnowledgeResult
		if !interactive && currentStep == 0 && r.knowledge != nil {
			knowledge = r.searchKnowledge(ctx, session, opts.KnowledgeTopK)
		}

		history, err := r.history.ListNonDiscarded(ctx, session.ID)
		if err != nil {
			return r.fail(ctx, session, currentStep, fmt.Errorf("looprunner: loading history: %w", err))
		}

		prompt, err := r.prompts.Build(ctx, PromptRequest{
			Session: session, Tools: opts.Tools, History: history, Knowledge: knowledge,
			StepNumber: currentStep, AutoRun: !interactive,
		})
		if err != nil {
			return r.fail(ctx, session, currentStep, fmt.Errorf("looprunner: building prompt: %w", err))
		}

		r.emit(ctx, models.EventLLMStarted, session.ID, nil)
		response, err := r.callLLM(ctx, prompt)
		if err != nil {
			r.emit(ctx, models.EventLLMError, session.ID, err.Error())
			return r.fail(ctx, session, currentStep, fmt.Errorf("looprunner: llm call: %w", err))
		}
		r.emit(ctx, models.EventLLMComplete, session.ID, response)

		action, err := r.parser.Parse(response.Text)
		if err != nil {
			return r.fail(ctx, session, currentStep, fmt.Errorf("looprunner: parsing response: %w", err))
		}

		result, err := r.stepExec.Execute(ctx, session, action, prompt, response.Text)
		if err != nil {
			return r.fail(ctx, session, currentStep, fmt.Errorf("looprunner: executing step: %w", err))
		}
		currentStep++

		r.stopCtl.UpdateState(session.ID, currentStep, result.Step.ID, result.Step.ResultSummary)

		if interactive && (result.WaitForUser || action.Kind() == models.ActionCallTool || action.Kind() == models.ActionCallToolsParallel) {
			r.emit(ctx, models.EventToolRequiresConfirmation, session.ID, ToolCallPreview{Step: result.Step, Action: action})
			proceed, err := opts.ConfirmationHandler(ctx, ToolCallPreview{Step: result.Step, Action: action})
			if err != nil || !proceed {
				_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionPaused)
				return &models.TaskResult{Status: models.SessionStopped, StepsExecuted: currentStep, CanResume: true}, nil
			}
		}

		if action.Kind() == models.ActionFinish {
			r.emit(ctx, models.EventTaskCompleted, session.ID, result.Step.ResultSummary)
			return &models.TaskResult{Status: models.SessionCompleted, StepsExecuted: currentStep, FinalResult: result.Step.ResultSummary}, nil
		}

		if result.Step.Status == models.StepFailed && !result.ShouldContinue {
			_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionFailed)
			r.emit(ctx, models.EventTaskFailed, session.ID, result.Step.ErrorMessage)
			return &models.TaskResult{Status: models.SessionFailed, StepsExecuted: currentStep, Error: result.Step.ErrorMessage}, nil
		}

		if r.stopCtl.HasStopRequest() {
			r.stopCtl.ConfirmStop()
		}
		r.emit(ctx, models.EventProgressUpdated, session.ID, map[string]any{"currentStep": currentStep})

		if currentStep >= opts.MaxSteps {
			r.emit(ctx, models.EventTaskMaxStepsReached, session.ID, nil)
			_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionFailed)
			return &models.TaskResult{Status: models.SessionFailed, StepsExecuted: currentStep, Error: "max steps reached without Finish"}, nil
		}
	}
}

func (r *Runner) callLLM(ctx context.Context, prompt string) (*models.LLMResponse, error) {
	if r.llm.Capabilities().SupportsStreaming {
		return r.llm.CallStreaming(ctx, prompt, nil, func(chunk models.LLMChunk) {
			r.emit(ctx, models.EventLLMStreaming, "", chunk)
		})
	}
	return r.llm.Call(ctx, prompt, nil)
}

func (r *Runner) searchKnowledge(ctx context.Context, session *models.Session, topK int) []models.KnowledgeResult {
	r.emit(ctx, models.EventKnowledgeSearching, session.ID, nil)
	results, err := r.knowledge.Search(ctx, session.Goal, topK)
	if err != nil {
		// Knowledge failure is non-fatal: the autonomous loop proceeds
		// without retrieval context.
		r.emit(ctx, models.EventKnowledgeError, session.ID, err.Error())
		return nil
	}
	r.emit(ctx, models.EventKnowledgeFound, session.ID, results)
	return results
}

func (r *Runner) fail(ctx context.Context, session *models.Session, stepsExecuted int, err error) (*models.TaskResult, error) {
	_ = r.sessions.UpdateStatus(ctx, session.ID, models.SessionFailed)
	r.emit(ctx, models.EventTaskFailed, session.ID, err.Error())
	return &models.TaskResult{Status: models.SessionFailed, StepsExecuted: stepsExecuted, Error: err.Error()}, nil
}

func (r *Runner) emit(ctx context.Context, tag models.EventTag, sessionID string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now(), Payload: payload})
}
