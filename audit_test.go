package nickauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	h := newHarness(t)
	sink := &countingSink{}
	cfg := testConfig()
	cfg.Audit.Enabled = false
	engine, err := New().WithConfig(cfg).WithStore(h.store).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatal(err)
	}

	_, _ = engine.Login(context.Background(), "nobody", "longenough1")
	engine.Close()
	if sink.count.Load() != 0 {
		t.Fatalf("expected no events, got %d", sink.count.Load())
	}
}

func TestAuditLoginFailureCarriesRequestContext(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "sybil", "longenough1")

	ctx := WithClientIP(context.Background(), "192.0.2.44")
	ctx = WithUserAgent(ctx, "test-agent/1.0")
	ctx = WithRequestID(ctx, "req-123")
	if _, err := h.engine.Login(ctx, "sybil", "wrong-password"); err == nil {
		t.Fatal("expected failure")
	}
	h.engine.Close()

	events := h.sink.byType(auditEventLoginFailure)
	if len(events) != 1 {
		t.Fatalf("expected one login_failure event, got %d", len(events))
	}
	ev := events[0]
	if ev.UserID != reg.User.ID || ev.Nickname != "sybil" {
		t.Fatalf("unexpected subject %+v", ev)
	}
	if ev.IP != "192.0.2.44" || ev.UserAgent != "test-agent/1.0" || ev.RequestID != "req-123" {
		t.Fatalf("request context missing from event %+v", ev)
	}
	if ev.Error != "invalid_credentials" || ev.Success {
		t.Fatalf("unexpected outcome %+v", ev)
	}
	if !ev.Timestamp.Equal(h.clock.Now()) {
		t.Fatalf("expected clock timestamp, got %v", ev.Timestamp)
	}
}

func TestAuditRefreshReuseEvent(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "trent", "longenough1")
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, reg.RefreshToken); err != nil {
		t.Fatal(err)
	}
	_, _ = h.engine.Refresh(ctx, reg.RefreshToken)
	h.engine.Close()

	if len(h.sink.byType(auditEventRefreshSuccess)) != 1 {
		t.Fatal("expected one refresh_success event")
	}
	if len(h.sink.byType(auditEventRefreshReuseDetected)) != 1 {
		t.Fatal("expected one refresh_reuse_detected event")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t)
	cfg := testConfig()
	engine, err := New().WithConfig(cfg).WithStore(h.store).WithMailer(h.mailer).WithAuditSink(NewJSONWriterSink(&buf)).Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	reg, err := engine.Register(ctx, RegisterInput{Nickname: "ursula", Password: "secret-pass-1", Email: "u@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = engine.Login(ctx, "ursula", "secret-pass-2")
	if _, err := engine.Refresh(ctx, reg.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if err := engine.ForgotPassword(ctx, "u@example.com"); err != nil {
		t.Fatal(err)
	}
	engine.Close()

	out := buf.String()
	for _, secret := range []string{"secret-pass-1", "secret-pass-2", reg.RefreshToken, reg.AccessToken, h.mailer.last(t).token} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked a secret: %q", secret)
		}
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
	}
}
