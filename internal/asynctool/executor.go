// Package asynctool implements the async tool executor (C5): tracking of
// long-running external jobs via a polling queue or webhook, with all
// state living in the cache adapter rather than in process memory.
package asynctool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/internal/obslog"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// Cache is the subset of the cache adapter (§6) this package needs: TTL
// key/value storage, a FIFO queue for polling, and a key scan so tasks
// can be listed by session or by non-terminal status.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	QueuePush(ctx context.Context, queue string, value string) error
	QueuePop(ctx context.Context, queue string) (string, bool, error)
}

const (
	keyTaskPrefix  = "async:task:"
	queuePolling   = "async:polling:queue"
	defaultTimeout = 3600 * time.Second
	completedTTL   = 24 * time.Hour
	failedTTL      = 1 * time.Hour
)

func taskKey(id string) string { return keyTaskPrefix + id }

// Executor tracks async tool tasks.
type Executor struct {
	cache      Cache
	bus        *bus.Bus
	taskTTL    time.Duration
	maxRetries int
}

// New returns an Executor backed by cache. taskTimeout defaults to 3600s
// and maxRetries defaults to 3 when zero.
func New(cache Cache, b *bus.Bus, taskTimeout time.Duration, maxRetries int) *Executor {
	if taskTimeout <= 0 {
		taskTimeout = defaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Executor{cache: cache, bus: b, taskTTL: taskTimeout, maxRetries: maxRetries}
}

func (e *Executor) save(ctx context.Context, task *models.AsyncToolTask, ttl time.Duration) error {
	task.UpdatedAt = time.Now()
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, taskKey(task.ID), b, ttl)
}

func (e *Executor) load(ctx context.Context, taskID string) (*models.AsyncToolTask, error) {
	raw, ok, err := e.cache.Get(ctx, taskKey(taskID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("asynctool: task %q not found", taskID)
	}
	var task models.AsyncToolTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("asynctool: decoding task %q: %w", taskID, err)
	}
	return &task, nil
}

// ExecuteAsync submits tool/params for background execution and returns
// the internal task id immediately after the submit call completes (or
// fails).
func (e *Executor) ExecuteAsync(ctx context.Context, desc *models.ToolDescriptor, params json.RawMessage, tc models.ToolContext) (string, error) {
	if desc.AsyncOps == nil {
		return "", fmt.Errorf("asynctool: tool %q has no async ops", desc.Name)
	}

	now := time.Now()
	task := &models.AsyncToolTask{
		ID:         uuid.NewString(),
		ToolName:   desc.Name,
		Params:     string(params),
		SessionID:  tc.SessionID,
		StepID:     tc.StepID,
		Status:     models.AsyncPending,
		Kind:       desc.AsyncOps.Kind,
		MaxRetries: e.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.save(ctx, task, e.taskTTL); err != nil {
		return "", err
	}
	e.emit(ctx, models.EventToolAsyncSubmitted, tc.SessionID, task.ID)

	externalID, err := desc.AsyncOps.Submit(ctx, params, tc)
	if err != nil {
		task.Status = models.AsyncFailed
		task.Error = obslog.Redact(err.Error())
		_ = e.save(ctx, task, failedTTL)
		e.emit(ctx, models.EventToolAsyncError, tc.SessionID, task.ID)
		return task.ID, err
	}

	task.ExternalID = externalID
	task.Status = models.AsyncRunning
	if err := e.save(ctx, task, e.taskTTL); err != nil {
		return task.ID, err
	}
	if task.Kind == models.AsyncPolling {
		if err := e.cache.QueuePush(ctx, queuePolling, task.ID); err != nil {
			return task.ID, err
		}
	}
	e.emit(ctx, models.EventToolAsyncRunning, tc.SessionID, task.ID)
	return task.ID, nil
}

// PollTask checks on a previously submitted task. It is a no-op for tasks
// already in a terminal state, so a queue-backed implementation can
// tolerate spurious pops of already-terminal tasks.
func (e *Executor) PollTask(ctx context.Context, taskID string, desc *models.ToolDescriptor, tc models.ToolContext) error {
	task, err := e.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if desc.AsyncOps == nil || desc.AsyncOps.Poll == nil {
		return fmt.Errorf("asynctool: tool %q has no poll function", desc.Name)
	}

	outcome, err := desc.AsyncOps.Poll(ctx, task.ExternalID, tc)
	task.LastPollAt = time.Now()
	if err != nil {
		task.RetryCount++
		if task.RetryCount >= task.MaxRetries {
			task.Status = models.AsyncFailed
			task.Error = obslog.Redact(err.Error())
			return e.save(ctx, task, failedTTL)
		}
		if saveErr := e.save(ctx, task, e.taskTTL); saveErr != nil {
			return saveErr
		}
		return e.cache.QueuePush(ctx, queuePolling, task.ID)
	}

	return e.applyOutcome(ctx, task, outcome, tc)
}

// HandleWebhook mirrors PollTask but is driven by a webhook payload
// instead of an active poll.
func (e *Executor) HandleWebhook(ctx context.Context, taskID string, payload json.RawMessage, desc *models.ToolDescriptor, tc models.ToolContext) error {
	task, err := e.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if desc.AsyncOps == nil || desc.AsyncOps.OnWebhook == nil {
		return fmt.Errorf("asynctool: tool %q has no webhook handler", desc.Name)
	}
	outcome, err := desc.AsyncOps.OnWebhook(ctx, task.ExternalID, payload, tc)
	if err != nil {
		task.Status = models.AsyncFailed
		task.Error = obslog.Redact(err.Error())
		return e.save(ctx, task, failedTTL)
	}
	return e.applyOutcome(ctx, task, outcome, tc)
}

func (e *Executor) applyOutcome(ctx context.Context, task *models.AsyncToolTask, outcome *models.AsyncPollOutcome, tc models.ToolContext) error {
	switch outcome.Status {
	case models.AsyncCompleted:
		task.Status = models.AsyncCompleted
		task.Result = outcome.Result
		if err := e.save(ctx, task, completedTTL); err != nil {
			return err
		}
		e.emit(ctx, models.EventToolAsyncCompleted, tc.SessionID, task.ID)
		return nil
	case models.AsyncFailed:
		task.Status = models.AsyncFailed
		task.Error = obslog.Redact(outcome.Error)
		if err := e.save(ctx, task, failedTTL); err != nil {
			return err
		}
		e.emit(ctx, models.EventToolAsyncError, tc.SessionID, task.ID)
		return nil
	default:
		if err := e.save(ctx, task, e.taskTTL); err != nil {
			return err
		}
		e.emit(ctx, models.EventToolAsyncProgress, tc.SessionID, task.ID)
		return e.cache.QueuePush(ctx, queuePolling, task.ID)
	}
}

// GetTask returns the current task record.
func (e *Executor) GetTask(ctx context.Context, taskID string) (*models.AsyncToolTask, error) {
	return e.load(ctx, taskID)
}

// loadAll scans every task key and decodes each one, skipping entries that
// fail to decode rather than failing the whole scan (a task can expire
// between the key scan and the Get).
func (e *Executor) loadAll(ctx context.Context) ([]*models.AsyncToolTask, error) {
	keys, err := e.cache.Keys(ctx, keyTaskPrefix+"*")
	if err != nil {
		return nil, err
	}
	tasks := make([]*models.AsyncToolTask, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := e.cache.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var task models.AsyncToolTask
		if err := json.Unmarshal(raw, &task); err != nil {
			continue
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// TasksBySession returns every task submitted under the given session,
// regardless of status.
func (e *Executor) TasksBySession(ctx context.Context, sessionID string) ([]*models.AsyncToolTask, error) {
	all, err := e.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.AsyncToolTask, 0, len(all))
	for _, task := range all {
		if task.SessionID == sessionID {
			out = append(out, task)
		}
	}
	return out, nil
}

// NonTerminalTasks returns every task not yet in a terminal state, across
// all sessions.
func (e *Executor) NonTerminalTasks(ctx context.Context) ([]*models.AsyncToolTask, error) {
	all, err := e.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.AsyncToolTask, 0, len(all))
	for _, task := range all {
		if !task.Status.Terminal() {
			out = append(out, task)
		}
	}
	return out, nil
}

// Cancel marks a non-terminal task failed with reason "cancelled".
func (e *Executor) Cancel(ctx context.Context, taskID string) error {
	task, err := e.load(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	task.Status = models.AsyncFailed
	task.Error = "cancelled"
	if err := e.save(ctx, task, failedTTL); err != nil {
		return err
	}
	e.emit(ctx, models.EventToolAsyncCancelled, task.SessionID, task.ID)
	return nil
}

// DrainPollQueue pops up to one task id from the polling queue, tolerating
// an empty queue. Callers loop this on a fixed cadence (the spec's
// default 5s polling rate lives in the caller, not here).
func (e *Executor) DrainPollQueue(ctx context.Context) (string, bool, error) {
	return e.cache.QueuePop(ctx, queuePolling)
}

func (e *Executor) emit(ctx context.Context, tag models.EventTag, sessionID, taskID string) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now(), Payload: map[string]any{"taskId": taskID}})
}
