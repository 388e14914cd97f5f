// Package paralleltool implements the parallel tool executor (C6): fan-out
// over the tool executor with one of three wait strategies and per-tool
// exponential-backoff retry.
package paralleltool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// ToolInvoker is the subset of the tool executor (C4) this package needs,
// kept as an interface so tests can supply a fake without standing up a
// full registry.
type ToolInvoker interface {
	Execute(ctx context.Context, name string, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error)
}

// Retryable reports whether an error returned by a ToolInvoker should be
// retried. Callers typically pass toolexec's *Error.CanRetry via a small
// adapter closure.
type Retryable func(err error) bool

// Spec is one member of a parallel batch request.
type Spec struct {
	ToolID   string
	ToolName string
	Params   json.RawMessage
}

// Request describes one CallToolsParallel invocation.
type Request struct {
	StepID       string
	SessionID    string
	Tools        []Spec
	WaitStrategy models.WaitStrategy
	Timeout      time.Duration
	MaxRetries   int
}

// Executor runs parallel tool batches.
type Executor struct {
	invoke    ToolInvoker
	retryable Retryable
	bus       *bus.Bus

	mu    sync.Mutex
	calls map[string][]*models.ParallelToolCall // keyed by stepID
}

// New returns an Executor. bus may be nil to disable event emission (tests
// commonly do this).
func New(invoke ToolInvoker, retryable Retryable, b *bus.Bus) *Executor {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Executor{invoke: invoke, retryable: retryable, bus: b, calls: make(map[string][]*models.ParallelToolCall)}
}

// ErrEmptyBatch is returned for a Request with no tools.
var ErrEmptyBatch = fmt.Errorf("paralleltool: batch must contain at least one tool")

// ErrDuplicateToolID is returned when two specs in one batch share a ToolID.
var ErrDuplicateToolID = fmt.Errorf("paralleltool: duplicate toolId in batch")

// Execute runs req to completion (or to its overall timeout) and returns
// the final tally plus the per-tool call records.
func (e *Executor) Execute(ctx context.Context, req Request, tc models.ToolContext) (*models.ParallelTally, []*models.ParallelToolCall, error) {
	if len(req.Tools) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	seen := make(map[string]bool, len(req.Tools))
	for _, s := range req.Tools {
		if seen[s.ToolID] {
			return nil, nil, ErrDuplicateToolID
		}
		seen[s.ToolID] = true
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now()
	calls := make([]*models.ParallelToolCall, len(req.Tools))
	for i, s := range req.Tools {
		calls[i] = &models.ParallelToolCall{
			ID:        uuid.NewString(),
			StepID:    req.StepID,
			ToolID:    s.ToolID,
			ToolName:  s.ToolName,
			Params:    s.Params,
			Status:    models.ParallelPending,
			RetryCap:  req.MaxRetries,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	e.mu.Lock()
	e.calls[req.StepID] = calls
	e.mu.Unlock()

	e.emit(ctx, models.EventToolsParallelSubmitted, req.SessionID, map[string]any{"stepId": req.StepID, "count": len(calls)})

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for _, c := range calls {
		c := c
		go func() {
			defer wg.Done()
			e.runOne(batchCtx, req, c, tc)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-batchCtx.Done():
		e.forceTimeouts(calls)
	}

	tally := tallyFor(calls, req.WaitStrategy)
	e.emit(ctx, models.EventToolsParallelReady, req.SessionID, tally)
	return tally, calls, nil
}

func (e *Executor) runOne(ctx context.Context, req Request, c *models.ParallelToolCall, tc models.ToolContext) {
	for {
		setStatus(c, models.ParallelRunning)
		e.emit(ctx, models.EventToolParallelStarted, req.SessionID, map[string]any{"toolId": c.ToolID})

		result, err := e.invoke.Execute(ctx, c.ToolName, c.Params, tc)
		if err == nil {
			b, _ := json.Marshal(result)
			setResult(c, models.ParallelCompleted, string(b), "")
			e.emit(ctx, models.EventToolParallelCompleted, req.SessionID, map[string]any{"toolId": c.ToolID})
			return
		}

		if e.retryable(err) && c.RetryCount < c.RetryCap {
			backoff := time.Duration(1<<uint(c.RetryCount)) * time.Second
			c.RetryCount++
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				setResult(c, models.ParallelTimeout, "", "batch timed out during retry backoff")
				return
			}
		}

		setResult(c, models.ParallelFailed, "", err.Error())
		e.emit(ctx, models.EventToolParallelFailed, req.SessionID, map[string]any{"toolId": c.ToolID, "error": err.Error()})
		return
	}
}

func (e *Executor) forceTimeouts(calls []*models.ParallelToolCall) {
	for _, c := range calls {
		withLock(c.ID, func() {
			if !c.Status.Terminal() {
				c.Status = models.ParallelTimeout
				c.UpdatedAt = time.Now()
			}
		})
	}
}

// CancelStepToolCalls marks every pending/running child of stepID failed
// with reason "cancelled", per §5's cancellation model.
func (e *Executor) CancelStepToolCalls(stepID string) {
	e.mu.Lock()
	calls := e.calls[stepID]
	e.mu.Unlock()
	for _, c := range calls {
		withLock(c.ID, func() {
			if !c.Status.Terminal() {
				c.Status = models.ParallelFailed
				c.Error = "cancelled"
				c.UpdatedAt = time.Now()
			}
		})
	}
}

// callLocks guards concurrent field mutation of individual
// *models.ParallelToolCall records: the model itself stays a plain data
// struct (no sync primitives), so mutation serialization lives here,
// keyed by call ID since goroutines only ever hold a call's ID + pointer.
var callLocks sync.Map // map[string]*sync.Mutex

func withLock(callID string, fn func()) {
	v, _ := callLocks.LoadOrStore(callID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	fn()
}

func tallyFor(calls []*models.ParallelToolCall, strategy models.WaitStrategy) *models.ParallelTally {
	t := &models.ParallelTally{TotalCount: len(calls)}
	for _, c := range calls {
		switch c.Status {
		case models.ParallelCompleted:
			t.SuccessCount++
			t.Completed = append(t.Completed, c.ToolID)
		case models.ParallelFailed, models.ParallelTimeout:
			t.FailedCount++
			t.Failed = append(t.Failed, c.ToolID)
		default:
			t.Pending = append(t.Pending, c.ToolID)
		}
	}

	switch strategy {
	case models.WaitAny:
		t.ConditionMet = t.SuccessCount >= 1
	case models.WaitMajority:
		need := (t.TotalCount + 1) / 2
		t.ConditionMet = t.SuccessCount >= need
	default: // WaitAll
		t.ConditionMet = t.SuccessCount == t.TotalCount
	}
	return t
}

func setStatus(c *models.ParallelToolCall, status models.ParallelStatus) {
	withLock(c.ID, func() {
		c.Status = status
		c.UpdatedAt = time.Now()
	})
}

func setResult(c *models.ParallelToolCall, status models.ParallelStatus, result, errMsg string) {
	withLock(c.ID, func() {
		if c.Status.Terminal() {
			return
		}
		c.Status = status
		c.Result = result
		c.Error = errMsg
		if status == models.ParallelCompleted {
			c.Progress = 100
		}
		c.UpdatedAt = time.Now()
	})
}

func (e *Executor) emit(ctx context.Context, tag models.EventTag, sessionID string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now(), Payload: payload})
}
