package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-run/agentcore/pkg/models"
)

func TestEmitSyncRegistrationOrder(t *testing.T) {
	b := New(nil, nil)
	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		b.On(models.EventStepStarted, func(ctx context.Context, ev models.Event) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	b.EmitSync(context.Background(), models.Event{Tag: models.EventStepStarted})

	if len(order) != 5 {
		t.Fatalf("expected 5 listener calls, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected registration order, got %v", order)
		}
	}
}

func TestListenerErrorIsolated(t *testing.T) {
	b := New(nil, nil)
	var called bool

	b.On(models.EventTaskFailed, func(ctx context.Context, ev models.Event) error {
		return errors.New("boom")
	})
	b.On(models.EventTaskFailed, func(ctx context.Context, ev models.Event) error {
		called = true
		return nil
	})

	// Must not panic or abort remaining listeners.
	b.EmitSync(context.Background(), models.Event{Tag: models.EventTaskFailed})

	if !called {
		t.Fatal("second listener did not run after first returned an error")
	}
}

func TestErrorHandlerReceivesError(t *testing.T) {
	var gotTag models.EventTag
	var gotErr error
	b := New(func(tag models.EventTag, err error) {
		gotTag = tag
		gotErr = err
	}, nil)

	b.On(models.EventToolFailed, func(ctx context.Context, ev models.Event) error {
		return errors.New("tool blew up")
	})

	b.EmitSync(context.Background(), models.Event{Tag: models.EventToolFailed})

	if gotTag != models.EventToolFailed {
		t.Fatalf("expected tag %q, got %q", models.EventToolFailed, gotTag)
	}
	if gotErr == nil || gotErr.Error() != "tool blew up" {
		t.Fatalf("unexpected error: %v", gotErr)
	}
}

func TestEmitDoesNotBlockPublisher(t *testing.T) {
	b := New(nil, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	b.On(models.EventProgressUpdated, func(ctx context.Context, ev models.Event) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		b.Emit(context.Background(), models.Event{Tag: models.EventProgressUpdated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow listener")
	}

	close(release)
	<-started
}

func TestNoCrossTagInterference(t *testing.T) {
	b := New(nil, nil)
	var a, c int

	b.On(models.EventLLMStarted, func(ctx context.Context, ev models.Event) error {
		a++
		return nil
	})
	b.On(models.EventLLMComplete, func(ctx context.Context, ev models.Event) error {
		c++
		return nil
	})

	b.EmitSync(context.Background(), models.Event{Tag: models.EventLLMStarted})

	if a != 1 || c != 0 {
		t.Fatalf("expected only the matching tag's listener to fire, got a=%d c=%d", a, c)
	}
}
