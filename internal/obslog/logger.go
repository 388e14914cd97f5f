// Package obslog provides the runtime's structured logging: a slog handler
// wrapper that redacts likely secrets from every record and stamps
// context-correlated fields (session id, user id, request id) automatically
// when they're present in the context passed to a logging call.
package obslog

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey string

const (
	ctxSessionID ctxKey = "session_id"
	ctxUserID    ctxKey = "user_id"
	ctxRequestID ctxKey = "request_id"
)

// WithSessionID returns a context that future logging calls will tag with
// session_id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxSessionID, id)
}

// WithUserID returns a context tagged with user_id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}

// WithRequestID returns a context tagged with request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// redactingHandler wraps an slog.Handler, redacting the message and any
// string-valued attribute before it reaches the wrapped handler, and
// injecting whichever correlation fields are present on the record's
// context.
type redactingHandler struct {
	next slog.Handler
}

// NewHandler wraps next with secret redaction. format selects "json" or
// "text"; anything else defaults to text, matching a typical CLI's default
// of human-readable output with JSON reserved for production.
func NewHandler(format string, level slog.Level, w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if format == "json" {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	return &redactingHandler{next: base}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	r.Message = Redact(r.Message)

	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(Redact(a.Value.String()))
		}
		redacted.AddAttrs(a)
		return true
	})

	if sid, ok := ctx.Value(ctxSessionID).(string); ok && sid != "" {
		redacted.AddAttrs(slog.String("session_id", sid))
	}
	if uid, ok := ctx.Value(ctxUserID).(string); ok && uid != "" {
		redacted.AddAttrs(slog.String("user_id", uid))
	}
	if rid, ok := ctx.Value(ctxRequestID).(string); ok && rid != "" {
		redacted.AddAttrs(slog.String("request_id", rid))
	}

	return h.next.Handle(ctx, redacted)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{next: h.next.WithAttrs(attrs)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

// New returns a *slog.Logger built on NewHandler.
func New(format string, level slog.Level, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(NewHandler(format, level, w))
}
