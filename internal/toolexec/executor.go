// Package toolexec implements the tool executor (C4): one-shot
// synchronous tool invocation — validate, invoke under a deadline,
// sanitize and classify failures, and optionally summarize a successful
// result for the next prompt.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/kestrel-run/agentcore/internal/toolregistry"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// Executor invokes tools looked up from a registry, using a shared
// validator cache.
type Executor struct {
	registry   *toolregistry.Registry
	validators *toolregistry.Validators
	// Summarize enables synthesizing a one-line summary of a successful
	// result for the next prompt ("executor mode" in the spec).
	Summarize bool
}

// New returns an Executor backed by registry. A single Validators cache is
// created internally; call Executor.ClearValidatorCache to flush it.
func New(registry *toolregistry.Registry) *Executor {
	return &Executor{
		registry:   registry,
		validators: toolregistry.NewValidators(),
	}
}

// ClearValidatorCache drops every compiled schema validator.
func (e *Executor) ClearValidatorCache() {
	e.validators.Clear()
}

// Execute runs one tool call to completion: lookup, validation, invocation
// under the tool's declared timeout, and sanitized-error classification.
// It never panics out to the caller — handler panics are recovered and
// reported as a ClassPanic *Error.
func (e *Executor) Execute(ctx context.Context, name string, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
	desc, ok := e.registry.Get(name)
	if !ok {
		return nil, &Error{
			Class:    ClassNotFound,
			ToolName: name,
			Message:  fmt.Sprintf("tool not found; available tools: %v", e.registry.Names()),
			CanRetry: false,
		}
	}

	normalized, err := e.validators.Validate(name, desc.ParamSchema, params)
	if err != nil {
		return nil, &Error{
			Class:      ClassValidation,
			ToolName:   name,
			Message:    err.Error(),
			Suggestion: fmt.Sprintf("parameters must conform to schema: %s", desc.ParamSchema),
			CanRetry:   true,
			Cause:      err,
		}
	}
	normalizedParams, err := json.Marshal(normalized)
	if err != nil {
		return nil, &Error{Class: ClassValidation, ToolName: name, Message: err.Error(), CanRetry: true, Cause: err}
	}

	result, err := e.invoke(ctx, desc, normalizedParams, tc)
	if err != nil {
		if hr, ok := err.(*handledResult); ok {
			result = hr.result
		} else {
			return nil, err
		}
	}

	if e.Summarize && result.Success && result.Summary == "" {
		result.Summary = summarize(result.Result)
	}
	return result, nil
}

func (e *Executor) invoke(ctx context.Context, desc *models.ToolDescriptor, params json.RawMessage, tc models.ToolContext) (result *models.ToolResult, execErr error) {
	timeout := time.Duration(desc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *models.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &Error{
					Class:    ClassPanic,
					ToolName: desc.Name,
					Message:  Redact(fmt.Sprintf("panic: %v\n%s", r, debug.Stack())),
					CanRetry: false,
				}}
			}
		}()
		res, err := desc.Handler(callCtx, params, tc)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, &Error{
			Class:      ClassTimeout,
			ToolName:   desc.Name,
			Message:    fmt.Sprintf("tool %q timed out after %s", desc.Name, timeout),
			Suggestion: "consider increasing the tool's timeoutSeconds",
			CanRetry:   true,
			Cause:      callCtx.Err(),
		}
	case o := <-done:
		if o.err == nil {
			return o.result, nil
		}
		return nil, e.classify(ctx, desc, o.err, params, tc)
	}
}

func (e *Executor) classify(ctx context.Context, desc *models.ToolDescriptor, err error, params json.RawMessage, tc models.ToolContext) error {
	if perr, ok := err.(*Error); ok {
		return perr
	}

	if desc.ErrorHandler != nil {
		res, herr := desc.ErrorHandler(ctx, err, params, tc)
		if herr == nil && res != nil {
			// The tool's own handler produced a result in place of an
			// error; wrap it so the caller still gets *models.ToolResult
			// via a sentinel that Execute recognizes.
			return &handledResult{result: res}
		}
	}

	sanitized := Redact(err.Error())
	return &Error{
		Class:    ClassExecution,
		ToolName: desc.Name,
		Message:  sanitized,
		CanRetry: classifyRetryable(sanitized),
		Cause:    err,
	}
}

// handledResult lets a tool's own error handler substitute a ToolResult
// for the generic sanitized-error path without changing Execute's return
// shape — Execute unwraps it before returning to its caller.
type handledResult struct {
	result *models.ToolResult
}

func (h *handledResult) Error() string { return "handled by tool error handler" }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func summarize(v any) string {
	const maxLen = 500
	switch val := v.(type) {
	case []any:
		n := len(val)
		if n > 3 {
			val = val[:3]
		}
		b, _ := json.Marshal(val)
		s := string(b)
		if n > 3 {
			s = fmt.Sprintf("%s ... (%d items total)", s, n)
		}
		return truncate(s, maxLen)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
			if len(keys) == 5 {
				break
			}
		}
		return truncate(fmt.Sprintf("object with keys: %v", keys), maxLen)
	default:
		b, _ := json.Marshal(v)
		return truncate(string(b), maxLen)
	}
}
