package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kestrel-run/agentcore/internal/toolregistry"
	"github.com/kestrel-run/agentcore/pkg/models"
)

func registerTool(t *testing.T, reg *toolregistry.Registry, d *models.ToolDescriptor) {
	t.Helper()
	if err := reg.Register(d); err != nil {
		t.Fatalf("register %q: %v", d.Name, err)
	}
}

func baseSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}},"required":["x"]}`)
}

func TestExecuteToolNotFound(t *testing.T) {
	reg := toolregistry.New(nil)
	ex := New(reg)
	_, err := ex.Execute(context.Background(), "missing", nil, models.ToolContext{})
	var perr *Error
	if !errors.As(err, &perr) || perr.Class != ClassNotFound {
		t.Fatalf("expected ClassNotFound error, got %v", err)
	}
}

func TestExecuteValidationFailure(t *testing.T) {
	reg := toolregistry.New(nil)
	registerTool(t, reg, &models.ToolDescriptor{
		Name: "t", Description: "d", Version: "1", Category: "c", Risk: models.RiskLow,
		TimeoutSeconds: 5, ParamSchema: baseSchema(),
		Handler: func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
			return &models.ToolResult{Success: true}, nil
		},
	})
	ex := New(reg)
	_, err := ex.Execute(context.Background(), "t", json.RawMessage(`{}`), models.ToolContext{})
	var perr *Error
	if !errors.As(err, &perr) || perr.Class != ClassValidation || !perr.CanRetry {
		t.Fatalf("expected retryable ClassValidation error, got %v", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	reg := toolregistry.New(nil)
	registerTool(t, reg, &models.ToolDescriptor{
		Name: "slow", Description: "d", Version: "1", Category: "c", Risk: models.RiskLow,
		TimeoutSeconds: 1, ParamSchema: baseSchema(),
		Handler: func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
			return &models.ToolResult{Success: true}, nil
		},
	})
	ex := New(reg)
	_, err := ex.Execute(context.Background(), "slow", json.RawMessage(`{"x":"a"}`), models.ToolContext{})
	var perr *Error
	if !errors.As(err, &perr) || perr.Class != ClassTimeout || !perr.CanRetry {
		t.Fatalf("expected retryable ClassTimeout error, got %v", err)
	}
}

func TestExecuteSanitizesSecrets(t *testing.T) {
	reg := toolregistry.New(nil)
	registerTool(t, reg, &models.ToolDescriptor{
		Name: "leaky", Description: "d", Version: "1", Category: "c", Risk: models.RiskLow,
		TimeoutSeconds: 5, ParamSchema: baseSchema(),
		Handler: func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
			return nil, errors.New("call failed: Bearer sk-ant-REDACTED")
		},
	})
	ex := New(reg)
	_, err := ex.Execute(context.Background(), "leaky", json.RawMessage(`{"x":"a"}`), models.ToolContext{})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if containsSubstr(perr.Message, "Bearer") || containsSubstr(perr.Message, "sk-ant-") {
		t.Fatalf("expected secrets redacted, got %q", perr.Message)
	}
}

func TestExecutePanicRecovered(t *testing.T) {
	reg := toolregistry.New(nil)
	registerTool(t, reg, &models.ToolDescriptor{
		Name: "boom", Description: "d", Version: "1", Category: "c", Risk: models.RiskLow,
		TimeoutSeconds: 5, ParamSchema: baseSchema(),
		Handler: func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
			panic("kaboom")
		},
	})
	ex := New(reg)
	_, err := ex.Execute(context.Background(), "boom", json.RawMessage(`{"x":"a"}`), models.ToolContext{})
	var perr *Error
	if !errors.As(err, &perr) || perr.Class != ClassPanic {
		t.Fatalf("expected ClassPanic error, got %v", err)
	}
}

func TestRetryClassification(t *testing.T) {
	cases := map[string]bool{
		"connection timeout":     true,
		"rate limit exceeded":    true,
		"502 bad gateway":        true,
		"invalid input":          false,
		"permission denied":      false,
	}
	for msg, want := range cases {
		if got := classifyRetryable(msg); got != want {
			t.Errorf("classifyRetryable(%q) = %v, want %v", msg, got, want)
		}
	}
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
