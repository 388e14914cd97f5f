// Package stopctl implements the stop controller (C2): a session-local,
// not process-global, coordinator between a cancellation request and the
// agent loop's step boundary. It is owned by a single agent instance, the
// same as the tool registry and event bus.
package stopctl

import (
	"sync"

	"github.com/kestrel-run/agentcore/pkg/models"
)

// Controller tracks a pending stop request and the resumable snapshot of
// session progress.
//
// Graceful-stop protocol: the loop finishes the current step, calls
// ConfirmStop, observes ShouldStop, and exits with status stopped. An
// immediate stop short-circuits ShouldStop without needing ConfirmStop.
type Controller struct {
	mu sync.Mutex

	requested bool
	graceful  bool
	saveState bool
	confirmed bool

	snapshot *models.StopState
}

// New returns a Controller with no pending stop request.
func New() *Controller {
	return &Controller{}
}

// RequestStop records a stop request with the given graceful and saveState
// flags. Controller applies no defaults: callers pass both values
// explicitly.
func (c *Controller) RequestStop(graceful, saveState bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
	c.graceful = graceful
	c.saveState = saveState
	c.confirmed = false
}

// UpdateState refreshes the resumable snapshot. The loop calls this after
// every step, independent of whether a stop has been requested.
func (c *Controller) UpdateState(sessionID string, completedSteps int, lastStepID string, partialResult string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = &models.StopState{
		SessionID:      sessionID,
		CompletedSteps: completedSteps,
		LastStepID:     lastStepID,
		PartialResult:  partialResult,
	}
}

// ConfirmStop marks a graceful stop as ready to take effect. It is only
// meaningful after RequestStop; calling it without a pending request is a
// no-op, matching the spec's "callable only if a stop is requested".
func (c *Controller) ConfirmStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.requested {
		return
	}
	c.confirmed = true
}

// HasStopRequest reports whether a stop has been requested, confirmed or
// not. The autonomous loop uses this to decide whether to call ConfirmStop
// once the current step has finished.
func (c *Controller) HasStopRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// ShouldStop reports whether the loop must exit now: true iff the stop is
// immediate (requested AND not graceful), or it is graceful AND confirmed.
func (c *Controller) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.requested {
		return false
	}
	if !c.graceful {
		return true
	}
	return c.confirmed
}

// GetStopState returns the current snapshot with CanResume derived from
// saveState (defaulting true when a snapshot exists but no stop was ever
// requested with an explicit false).
func (c *Controller) GetStopState() *models.StopState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	out := *c.snapshot
	if c.requested {
		out.CanResume = c.saveState
	} else {
		out.CanResume = true
	}
	return &out
}

// Reset clears all flags and the snapshot. The loop calls this at entry so
// a resumed session starts with a clean controller.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = false
	c.graceful = false
	c.saveState = false
	c.confirmed = false
	c.snapshot = nil
}
