package nickauth

import (
	"slices"
	"testing"
	"time"
)

func TestLintDefaultConfigQuiet(t *testing.T) {
	cfg := DefaultConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings for defaults, got %v", ws.Codes())
	}
}

func TestLintReportsWeakSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Leeway = 90 * time.Second
	cfg.JWT.AccessTTL = 30 * time.Minute
	cfg.Lockout.MaxAttempts = 0
	cfg.RateLimit.AuthMaxFailures = 0
	cfg.PasswordReset.MinResponseTime = 0
	cfg.Security.RevealUnknownUser = true

	codes := cfg.Lint().Codes()
	for _, want := range []string{
		"leeway_large",
		"access_ttl_long",
		"lockout_disabled",
		"auth_rate_limit_disabled",
		"reset_padding_disabled",
		"reveal_unknown_user",
	} {
		if !slices.Contains(codes, want) {
			t.Errorf("expected warning %q, got %v", want, codes)
		}
	}
}
