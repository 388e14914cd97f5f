package toolexec

import (
	"strings"

	"github.com/kestrel-run/agentcore/internal/obslog"
)

// Redact delegates to the logging collaborator's redaction routine, so
// sanitized tool-execution error strings and log lines are scrubbed by
// exactly the same patterns.
func Redact(msg string) string {
	return obslog.Redact(msg)
}

// retryablePatterns are substrings whose presence (case-insensitively)
// in a sanitized error message marks it retryable, per spec §4.4.4.
var retryablePatterns = []string{
	"network",
	"timeout",
	"econnrefused",
	"etimedout",
	"enotfound",
	"rate limit",
	"too many requests",
	"502",
	"503",
	"504",
	"temporary",
}

func classifyRetryable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
