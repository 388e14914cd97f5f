package obslog

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, format string) (*slog.Logger, *os.File, func() string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	logger := New(format, slog.LevelInfo, w)
	return logger, w, func() string {
		w.Close()
		var buf bytes.Buffer
		buf.ReadFrom(r)
		return buf.String()
	}
}

func TestLoggerRedactsMessageAndAttrs(t *testing.T) {
	logger, _, read := newTestLogger(t, "text")
	logger.Info("calling api_key=sk-ant-1234567890abcdef", "detail", "Bearer abc123def456xyz")
	out := read()
	if strings.Contains(out, "sk-ant-1234567890abcdef") || strings.Contains(out, "abc123def456xyz") {
		t.Fatalf("expected secrets redacted from log line, got %q", out)
	}
}

func TestLoggerInjectsContextCorrelationFields(t *testing.T) {
	logger, _, read := newTestLogger(t, "text")
	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithUserID(ctx, "user-1")
	logger.InfoContext(ctx, "step started")
	out := read()
	if !strings.Contains(out, "sess-1") || !strings.Contains(out, "user-1") {
		t.Fatalf("expected correlation fields in log line, got %q", out)
	}
}
