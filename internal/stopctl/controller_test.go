package stopctl

import "testing"

func TestImmediateStopShortCircuits(t *testing.T) {
	c := New()
	c.RequestStop(false, true)
	if !c.ShouldStop() {
		t.Fatal("immediate stop should require no confirmation")
	}
}

func TestGracefulStopRequiresConfirm(t *testing.T) {
	c := New()
	c.RequestStop(true, true)
	if c.ShouldStop() {
		t.Fatal("graceful stop must not take effect before confirmation")
	}
	c.ConfirmStop()
	if !c.ShouldStop() {
		t.Fatal("graceful stop should take effect once confirmed")
	}
}

func TestConfirmStopNoOpWithoutRequest(t *testing.T) {
	c := New()
	c.ConfirmStop()
	if c.ShouldStop() {
		t.Fatal("confirm with no pending request must not trigger a stop")
	}
}

func TestResetClearsState(t *testing.T) {
	c := New()
	c.RequestStop(false, true)
	c.UpdateState("sess-1", 3, "step-3", "partial")
	c.Reset()
	if c.ShouldStop() {
		t.Fatal("reset should clear the stop request")
	}
	if c.GetStopState() != nil {
		t.Fatal("reset should clear the snapshot")
	}
}

func TestGetStopStateCanResume(t *testing.T) {
	c := New()
	c.UpdateState("sess-1", 2, "step-2", "")
	c.RequestStop(true, false)
	st := c.GetStopState()
	if st == nil {
		t.Fatal("expected a snapshot")
	}
	if st.CanResume {
		t.Fatal("expected CanResume=false when saveState was false")
	}
	if st.CompletedSteps != 2 || st.LastStepID != "step-2" {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
}

func TestHasStopRequest(t *testing.T) {
	c := New()
	if c.HasStopRequest() {
		t.Fatal("fresh controller must report no stop request")
	}
	c.RequestStop(true, true)
	if !c.HasStopRequest() {
		t.Fatal("expected HasStopRequest true after RequestStop")
	}
}
