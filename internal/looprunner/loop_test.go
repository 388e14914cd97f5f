package looprunner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/internal/step"
	"github.com/kestrel-run/agentcore/internal/stopctl"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// --- fakes shared across tests ---

type stepStore struct {
	mu    sync.Mutex
	steps map[string]*models.Step
}

func newStepStore() *stepStore { return &stepStore{steps: make(map[string]*models.Step)} }

func (s *stepStore) Create(ctx context.Context, st *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.steps[st.ID] = &cp
	return nil
}
func (s *stepStore) Update(ctx context.Context, st *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.steps[st.ID] = &cp
	return nil
}
func (s *stepStore) ListNonDiscarded(ctx context.Context, sessionID string) ([]*models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Step
	for _, st := range s.steps {
		if st.SessionID == sessionID && !st.Discarded {
			out = append(out, st)
		}
	}
	return out, nil
}
func (s *stepStore) MarkDiscarded(ctx context.Context, sessionID string, ids []string) error {
	return nil
}

type fakeTools struct{}

func (fakeTools) Execute(ctx context.Context, name string, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
	return &models.ToolResult{Success: true}, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	statuses map[string]models.SessionStatus
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{statuses: make(map[string]models.SessionStatus)}
}
func (f *fakeSessions) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return &models.Session{ID: sessionID}, nil
}
func (f *fakeSessions) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sessionID] = status
	return nil
}
func (f *fakeSessions) Complete(ctx context.Context, sessionID, resultSummary string) error {
	return f.UpdateStatus(ctx, sessionID, models.SessionCompleted)
}

// fakeLLM returns FinishAction text after finishAfter calls.
type fakeLLM struct {
	calls       int
	finishAfter int
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts models.CallOptions) (*models.LLMResponse, error) {
	f.calls++
	if f.calls > f.finishAfter {
		return &models.LLMResponse{Text: `<final_output>{"kind":"Finish","finalResult":"done"}</final_output>`}, nil
	}
	return &models.LLMResponse{Text: `<final_output>{"kind":"CallTool","toolName":"echo","params":{}}</final_output>`}, nil
}
func (f *fakeLLM) CallStreaming(ctx context.Context, prompt string, opts models.CallOptions, onChunk func(models.LLMChunk)) (*models.LLMResponse, error) {
	return f.Call(ctx, prompt, opts)
}
func (f *fakeLLM) CountTokens(text string) int                    { return len(text) }
func (f *fakeLLM) Capabilities() models.LLMCapabilities            { return models.LLMCapabilities{} }

type fakePrompts struct{}

func (fakePrompts) Build(ctx context.Context, req PromptRequest) (string, error) { return "prompt", nil }

// fakeParser inspects the envelope and returns the matching action kind.
type fakeParser struct{}

func (fakeParser) Parse(response string) (models.Action, error) {
	if response == `<final_output>{"kind":"Finish","finalResult":"done"}</final_output>` {
		return models.FinishAction{FinalResult: "done"}, nil
	}
	return models.CallToolAction{ToolName: "echo", Params: json.RawMessage(`{}`)}, nil
}

func newTestRunner(llm *fakeLLM, sessions *fakeSessions, history *stepStore) *Runner {
	stepExec := step.New(history, fakeTools{}, nil, nil, sessions, nil)
	return New(llm, fakePrompts{}, fakeParser{}, nil, sessions, history, stepExec, stopctl.New(), bus.New(nil, nil))
}

func TestAutonomousLoopFinishesAndReportsCompleted(t *testing.T) {
	llm := &fakeLLM{finishAfter: 2}
	sessions := newFakeSessions()
	history := newStepStore()
	runner := newTestRunner(llm, sessions, history)

	session := &models.Session{ID: "s1", UserID: "u1", Kind: models.AgentAutonomous}
	result, err := runner.Run(context.Background(), session, Options{MaxSteps: 10})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.StepsExecuted != 3 {
		t.Fatalf("expected 3 steps executed, got %d", result.StepsExecuted)
	}
}

func TestMaxStepsReachedWithoutFinishFails(t *testing.T) {
	llm := &fakeLLM{finishAfter: 100}
	sessions := newFakeSessions()
	history := newStepStore()
	runner := newTestRunner(llm, sessions, history)

	session := &models.Session{ID: "s2", UserID: "u1", Kind: models.AgentAutonomous}
	result, err := runner.Run(context.Background(), session, Options{MaxSteps: 3})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SessionFailed {
		t.Fatalf("expected failed on max steps, got %s", result.Status)
	}
	if result.StepsExecuted != 3 {
		t.Fatalf("expected 3 steps executed, got %d", result.StepsExecuted)
	}
}

func TestInteractiveRequiresConfirmationHandler(t *testing.T) {
	llm := &fakeLLM{finishAfter: 1}
	sessions := newFakeSessions()
	history := newStepStore()
	runner := newTestRunner(llm, sessions, history)

	session := &models.Session{ID: "s3", UserID: "u1", Kind: models.AgentInteractive}
	_, err := runner.Run(context.Background(), session, Options{MaxSteps: 5})
	if err == nil {
		t.Fatal("expected error when ConfirmationHandler is missing for an interactive session")
	}
}

func TestInteractivePausesWhenConfirmationDenied(t *testing.T) {
	llm := &fakeLLM{finishAfter: 5}
	sessions := newFakeSessions()
	history := newStepStore()
	runner := newTestRunner(llm, sessions, history)

	session := &models.Session{ID: "s4", UserID: "u1", Kind: models.AgentInteractive}
	deny := func(ctx context.Context, preview ToolCallPreview) (bool, error) { return false, nil }
	result, err := runner.Run(context.Background(), session, Options{MaxSteps: 5, ConfirmationHandler: deny})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SessionStopped || !result.CanResume {
		t.Fatalf("expected stopped+resumable, got %+v", result)
	}
}

func TestFinishEmitsTaskCompleted(t *testing.T) {
	llm := &fakeLLM{finishAfter: 0}
	sessions := newFakeSessions()
	history := newStepStore()
	stepExec := step.New(history, fakeTools{}, nil, nil, sessions, nil)
	b := bus.New(nil, nil)

	got := make(chan models.Event, 1)
	b.On(models.EventTaskCompleted, func(ctx context.Context, ev models.Event) error {
		got <- ev
		return nil
	})

	runner := New(llm, fakePrompts{}, fakeParser{}, nil, sessions, history, stepExec, stopctl.New(), b)
	session := &models.Session{ID: "s5", UserID: "u1", Kind: models.AgentAutonomous}
	result, err := runner.Run(context.Background(), session, Options{MaxSteps: 5})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("expected task:completed to be emitted")
	}
}

func TestInteractiveToolCallEmitsRequiresConfirmation(t *testing.T) {
	llm := &fakeLLM{finishAfter: 5}
	sessions := newFakeSessions()
	history := newStepStore()
	stepExec := step.New(history, fakeTools{}, nil, nil, sessions, nil)
	b := bus.New(nil, nil)

	got := make(chan models.Event, 1)
	b.On(models.EventToolRequiresConfirmation, func(ctx context.Context, ev models.Event) error {
		got <- ev
		return nil
	})

	runner := New(llm, fakePrompts{}, fakeParser{}, nil, sessions, history, stepExec, stopctl.New(), b)
	session := &models.Session{ID: "s6", UserID: "u1", Kind: models.AgentInteractive}
	approve := func(ctx context.Context, preview ToolCallPreview) (bool, error) { return true, nil }
	_, err := runner.Run(context.Background(), session, Options{MaxSteps: 5, ConfirmationHandler: approve})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("expected tool:requiresConfirmation to be emitted")
	}
}

func TestTimeoutProducesTimeoutFailure(t *testing.T) {
	llm := &fakeLLM{finishAfter: 100}
	sessions := newFakeSessions()
	history := newStepStore()
	runner := newTestRunner(llm, sessions, history)

	session := &models.Session{ID: "s5", UserID: "u1", Kind: models.AgentAutonomous}
	result, err := runner.Run(context.Background(), session, Options{MaxSteps: 1000, Timeout: time.Nanosecond})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SessionFailed || result.Error != "task timeout" {
		t.Fatalf("expected immediate timeout failure, got %+v", result)
	}
}
