package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	gate chan struct{}
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func TestPasswordResetMessage(t *testing.T) {
	url := ResetURL("https://app.example.com/", "abc123")
	assert.Equal(t, "https://app.example.com/reset-password?token=abc123", url)

	msg, err := PasswordResetMessage("a@example.com", "alice_01", url, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "Password Reset Request", msg.Subject)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Contains(t, msg.Text, url)
	assert.Contains(t, msg.Text, "expire in 60 minutes")
	assert.Contains(t, msg.HTML, `href="https://app.example.com/reset-password?token=abc123"`)
	assert.Contains(t, msg.HTML, "<strong>alice_01</strong>")
}

func TestTemplatesEscapeHTML(t *testing.T) {
	msg, err := EmailVerificationMessage("a@example.com", "<script>", "https://x/verify-email?token=t")
	require.NoError(t, err)
	assert.Equal(t, "Verify Your Email Address", msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.Text, "<script>")
}

func TestDispatcherDeliversResetEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	d := NewDispatcher(DispatcherConfig{
		AppOrigin: "http://localhost:5173",
		Now:       func() time.Time { return now },
	}, sender, nil)

	require.NoError(t, d.SendPasswordReset(context.Background(), "b@example.com", "bob", "tok", now.Add(time.Hour)))
	d.Close()

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "http://localhost:5173/reset-password?token=tok")
	assert.Contains(t, sent[0].Text, "60 minutes")
	assert.Equal(t, uint64(1), d.Delivered())

	assert.ErrorIs(t, d.SendPasswordReset(context.Background(), "b@example.com", "bob", "tok", now), ErrClosed)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	d := NewDispatcher(DispatcherConfig{BufferSize: 1, DropIfFull: true}, sender, nil)

	var full int
	for range 5 {
		if errors.Is(d.Enqueue(context.Background(), Message{To: "x@example.com"}), ErrQueueFull) {
			full++
		}
	}
	close(sender.gate)
	d.Close()

	assert.GreaterOrEqual(t, full, 3)
	assert.Equal(t, uint64(full), d.Dropped())
	assert.Equal(t, uint64(5-full), d.Delivered())
}

func TestDispatcherCountsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sender := &recordingSender{err: errors.New("relay down")}
	d := NewDispatcher(DispatcherConfig{}, sender, zap.New(core))

	require.NoError(t, d.Enqueue(context.Background(), Message{To: "x@example.com", Subject: "s"}))
	d.Close()

	assert.Equal(t, uint64(1), d.Failed())
	assert.Equal(t, 1, logs.FilterMessage("email delivery failed").Len())
}

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "noreply@example.com"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	var captured []*gomail.Msg
	s.deliver = func(_ context.Context, msgs ...*gomail.Msg) error {
		captured = append(captured, msgs...)
		return nil
	}

	msg, err := PasswordResetMessage("c@example.com", "carol", "https://x/reset-password?token=t", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), msg))
	require.Len(t, captured, 1)

	m := captured[0]
	assert.Equal(t, []string{"<c@example.com>"}, m.GetToString())
	assert.Equal(t, []string{"Password Reset Request"}, m.GetGenHeader(gomail.HeaderSubject))

	var raw bytes.Buffer
	_, err = m.WriteTo(&raw)
	require.NoError(t, err)
	rendered := strings.ToLower(raw.String())
	assert.Contains(t, rendered, "multipart/alternative")
	assert.Contains(t, rendered, "text/plain; charset=utf-8")
	assert.Contains(t, rendered, "text/html; charset=utf-8")
	assert.Contains(t, rendered, "from: <noreply@example.com>")
}

func TestSMTPSenderWrapsDeliveryErrors(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@example.com"})
	require.NoError(t, err)
	relay := errors.New("relay refused")
	calls := 0
	s.deliver = func(context.Context, ...*gomail.Msg) error {
		calls++
		return relay
	}

	err = s.Send(context.Background(), Message{To: "d@example.com", Subject: "s", Text: "body"})
	assert.ErrorIs(t, err, relay)
	assert.Contains(t, err.Error(), "smtp.example.com:587")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "d@example.com", Text: "body"}), context.Canceled)
	assert.Error(t, s.Send(context.Background(), Message{To: "not an address", Text: "body"}))
	assert.Equal(t, 1, calls)
}

func TestSMTPTLSPolicy(t *testing.T) {
	assert.Equal(t, gomail.TLSOpportunistic, tlsPolicy("localhost"))
	assert.Equal(t, gomail.TLSOpportunistic, tlsPolicy("127.0.0.1"))
	assert.Equal(t, gomail.TLSMandatory, tlsPolicy("smtp.example.com"))
}

func TestSMTPSenderRequiresSettings(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "x@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPSender(SMTPConfig{Host: "h"})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "h", From: "f@example.com"})
	require.NoError(t, err)
	assert.Error(t, s.Send(context.Background(), Message{}))
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, LogSender{Logger: zap.New(core)}.Send(context.Background(), Message{To: "d@example.com", Subject: "hi"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "d@example.com", logs.All()[0].ContextMap()["to"])
}
