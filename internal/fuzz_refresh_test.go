package internal

import (
	"strings"
	"testing"
)

// FuzzParseResetToken exercises reset token parsing with arbitrary strings.
// Goal: no panics; accepted tokens are canonical and hash stably.
func FuzzParseResetToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add(strings.Repeat("A", 64))
	f.Add(strings.Repeat("g", 64))
	f.Add("  " + strings.Repeat("0f", 32) + "\n")
	if token, err := NewResetToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		token, err := ParseResetToken(input)
		if err != nil {
			return
		}
		if len(token) != 2*ResetTokenBytes || token != strings.ToLower(token) {
			t.Fatalf("non-canonical token accepted: %q", token)
		}
		again, err := ParseResetToken(token)
		if err != nil || again != token {
			t.Fatalf("canonical token did not round-trip: %q %v", again, err)
		}
		if HashToken(token) != HashToken(again) {
			t.Fatal("hash must be stable")
		}
	})
}
