package obsmetrics

import (
	"testing"
	"time"
)

func TestRecordToolExecutionUpdatesSnapshot(t *testing.T) {
	m := New()
	m.RecordToolExecution("echo", "success", 10*time.Millisecond)
	m.RecordToolExecution("echo", "error", 5*time.Millisecond)

	snap := m.Snapshot()
	if snap.ToolCallsTotal != 2 {
		t.Fatalf("expected 2 total calls, got %d", snap.ToolCallsTotal)
	}
	if snap.ToolErrorsTotal != 1 {
		t.Fatalf("expected 1 error, got %d", snap.ToolErrorsTotal)
	}
}

func TestRecordSessionLifecycleDoesNotPanic(t *testing.T) {
	m := New()
	m.RecordSessionStarted("autonomous")
	m.RecordSessionEnded("autonomous", "completed", 2*time.Second)
}

func TestRecordForkLifecycleDoesNotPanic(t *testing.T) {
	m := New()
	m.RecordForkStarted(2)
	m.RecordForkEnded()
}
