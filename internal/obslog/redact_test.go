package obslog

import "testing"

func TestRedactMasksKnownSecretShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bearer", "Authorization: Bearer abc123def456"},
		{"apikey", "api_key=sk-ant-1234567890abcdef"},
		{"password", "password: hunter2hunter2"},
		{"homedir", "failed reading /home/alice/.config/secrets.yaml"},
		{"longhex", "token hash 9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := Redact(c.in)
			if out == c.in {
				t.Fatalf("expected %q to be redacted, got unchanged", c.in)
			}
		})
	}
}

func TestRedactTruncatesLongMessages(t *testing.T) {
	long := make([]byte, MaxRedactedLen*2)
	for i := range long {
		long[i] = 'a'
	}
	out := Redact(string(long))
	if len([]rune(out)) > MaxRedactedLen {
		t.Fatalf("expected truncation to %d runes, got %d", MaxRedactedLen, len([]rune(out)))
	}
}

func TestRedactLeavesBenignTextAlone(t *testing.T) {
	in := "tool execution completed successfully"
	if got := Redact(in); got != in {
		t.Fatalf("expected benign text unchanged, got %q", got)
	}
}
