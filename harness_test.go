package nickauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisstore "github.com/MrEthical07/nickauth/store/redis"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentReset struct {
	to       string
	nickname string
	token    string
	expires  time.Time
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentReset
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, nickname, token string, expiresAt time.Time) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentReset{to: to, nickname: nickname, token: token, expires: expiresAt})
	m.mu.Unlock()
	return nil
}

func (m *captureMailer) last(t *testing.T) sentReset {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a reset email")
	}
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *redisstore.Store
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	clock  *testClock
	mailer *captureMailer
	sink   *captureSink
}

// testConfig is DefaultConfig with cheap hashing, no reset padding and
// metrics plus audit switched on.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.PasswordReset.MinResponseTime = 0
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	st := redisstore.New(rdb, "test", redisstore.WithClock(clock.Now))
	mailer := &captureMailer{}
	sink := &captureSink{}

	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(rdb).
		WithClock(clock).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{
		engine: engine,
		store:  st,
		rdb:    rdb,
		mr:     mr,
		clock:  clock,
		mailer: mailer,
		sink:   sink,
	}
}

func (h *harness) register(t *testing.T, nickname, password string) *AuthResult {
	t.Helper()
	return h.registerEmail(t, nickname, password, "")
}

func (h *harness) registerEmail(t *testing.T, nickname, password, email string) *AuthResult {
	t.Helper()
	res, err := h.engine.Register(context.Background(), RegisterInput{
		Nickname: nickname,
		Password: password,
		Email:    email,
	})
	if err != nil {
		t.Fatalf("register %s: %v", nickname, err)
	}
	return res
}

func (h *harness) refreshCount(t *testing.T, userID string) int {
	t.Helper()
	u, err := h.store.FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("find %s: %v", userID, err)
	}
	return len(u.RefreshTokens)
}
