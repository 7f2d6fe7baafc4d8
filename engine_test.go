package nickauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/MrEthical07/nickauth/store"
)

func TestEngineNotReady(t *testing.T) {
	var e Engine
	ctx := context.Background()
	if _, err := e.Login(ctx, "alice", "longenough1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Authenticate(ctx, "token"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Logout(ctx, "", "token")
}

func TestBuilderRequiresStore(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	h := newHarness(t)
	b := New().WithConfig(testConfig()).WithStore(h.store)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(e.Close)
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestCheckUserAction(t *testing.T) {
	h := newHarness(t)
	h.register(t, "carol", "longenough1")
	ctx := context.Background()

	res, err := h.engine.CheckUser(ctx, "Carol")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Exists || res.Action != "login" {
		t.Fatalf("expected login action, got %+v", res)
	}

	res, err = h.engine.CheckUser(ctx, "dave")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Exists || res.Action != "register" {
		t.Fatalf("expected register action, got %+v", res)
	}
}

func TestRegisterReturnsPublicProfile(t *testing.T) {
	h := newHarness(t)
	res := h.registerEmail(t, "Erin_1", "longenough1", "Erin@Example.com")

	want := PublicProfile{
		ID:        res.User.ID,
		Nickname:  "erin_1",
		Email:     "erin@example.com",
		Role:      RoleUser,
		IsActive:  true,
		CreatedAt: h.clock.Now(),
	}
	if diff := cmp.Diff(want, res.User, cmpopts.IgnoreFields(PublicProfile{}, "LastLogin")); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if got := h.refreshCount(t, res.User.ID); got != 1 {
		t.Fatalf("expected one stored refresh token, got %d", got)
	}
}

func TestRegisterValidationCollectsFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register(context.Background(), RegisterInput{
		Nickname: "A!",
		Password: "short",
		Email:    "not-an-email",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range AsError(err).Fields {
		fields[f.Field] = true
	}
	for _, name := range []string{"nickname", "password", "email"} {
		if !fields[name] {
			t.Fatalf("expected field error for %s, got %v", name, AsError(err).Fields)
		}
	}
}

func TestRegisterConflicts(t *testing.T) {
	h := newHarness(t)
	h.registerEmail(t, "frank", "longenough1", "frank@example.com")
	ctx := context.Background()

	_, err := h.engine.Register(ctx, RegisterInput{Nickname: "FRANK", Password: "longenough1"})
	if !errors.Is(err, ErrNicknameTaken) {
		t.Fatalf("expected NICKNAME_TAKEN, got %v", err)
	}
	_, err = h.engine.Register(ctx, RegisterInput{Nickname: "frank2", Password: "longenough1", Email: "frank@example.com"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
}

func TestLoginLockoutLifecycle(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "grace", "longenough1")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := h.engine.Login(ctx, "grace", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected INVALID_CREDENTIALS, got %v", i, err)
		}
	}
	if _, err := h.engine.Login(ctx, "grace", "longenough1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ACCOUNT_LOCKED with the correct password, got %v", err)
	}

	h.clock.Advance(14 * time.Minute)
	if _, err := h.engine.Login(ctx, "grace", "longenough1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock to hold before 15m, got %v", err)
	}

	h.clock.Advance(time.Minute + time.Second)
	if _, err := h.engine.Login(ctx, "grace", "longenough1"); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
	u, err := h.store.FindByID(ctx, reg.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.LoginAttempts != 0 || u.LockUntil != nil {
		t.Fatalf("expected counters reset, got attempts=%d lock=%v", u.LoginAttempts, u.LockUntil)
	}

	h.engine.Close()
	if len(h.sink.byType(auditEventAccountLocked)) != 1 {
		t.Fatal("expected exactly one account_locked audit event")
	}
}

func TestLoginUnknownNicknameIsUniform(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Login(context.Background(), "nobody", "longenough1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
	}

	reveal := newHarness(t, func(c *Config) { c.Security.RevealUnknownUser = true })
	if _, err := reveal.engine.Login(context.Background(), "nobody", "longenough1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestAuthRateLimitAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RateLimit.AuthMaxFailures = 3 })
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Login(ctx, "nobody", "longenough1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := h.engine.CheckUser(ctx, "nobody"); !errors.Is(err, ErrAuthRateLimited) {
		t.Fatalf("expected AUTH_RATE_LIMIT_EXCEEDED, got %v", err)
	}

	other := WithClientIP(context.Background(), "203.0.113.10")
	if _, err := h.engine.CheckUser(other, "nobody"); err != nil {
		t.Fatalf("other IP must not be limited: %v", err)
	}
}

func TestRefreshRotationAndReuse(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "heidi", "longenough1")
	ctx := context.Background()

	rotated, err := h.engine.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == reg.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := h.engine.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected INVALID_REFRESH_TOKEN on reuse, got %v", err)
	}
	if got := h.refreshCount(t, reg.User.ID); got != 0 {
		t.Fatalf("reuse must revoke every session, %d left", got)
	}
	if _, err := h.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected the rotated token to be revoked too, got %v", err)
	}
	// The revoked rotated token is a second reuse of a valid signature.
	if got := h.engine.Metrics().Value(MetricRefreshReuseDetected); got != 2 {
		t.Fatalf("expected two reuse metrics, got %d", got)
	}
}

func TestRefreshErrors(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "ivan", "longenough1")
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected NO_TOKEN, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected INVALID_TOKEN, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, reg.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	h.clock.Advance(8 * 24 * time.Hour)
	if _, err := h.engine.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestRefreshListIsBounded(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "judy", "longenough1")
	ctx := context.Background()

	tokens := []string{reg.RefreshToken}
	for i := 0; i < 6; i++ {
		res, err := h.engine.Login(ctx, "judy", "longenough1")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		tokens = append(tokens, res.RefreshToken)
	}
	if got := h.refreshCount(t, reg.User.ID); got != 5 {
		t.Fatalf("expected 5 stored refresh tokens, got %d", got)
	}

	if _, err := h.engine.Refresh(ctx, tokens[len(tokens)-1]); err != nil {
		t.Fatalf("newest token must refresh: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, tokens[0]); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("oldest token must have been evicted, got %v", err)
	}
}

func TestLogoutNeverFails(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "kim", "longenough1")
	ctx := context.Background()

	h.engine.Logout(ctx, reg.User.ID, "")
	h.engine.Logout(ctx, reg.User.ID, "not-a-token")
	h.engine.Logout(ctx, "", reg.RefreshToken)
	if got := h.refreshCount(t, reg.User.ID); got != 0 {
		t.Fatalf("expected the token removed, %d left", got)
	}
	h.engine.Logout(ctx, reg.User.ID, reg.RefreshToken)

	if _, err := h.engine.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("logged out token must not refresh, got %v", err)
	}
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	h := newHarness(t)
	reg := h.registerEmail(t, "leo", "longenough1", "leo@example.com")
	ctx := context.Background()

	if err := h.engine.ForgotPassword(ctx, "LEO@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	mail := h.mailer.last(t)
	if mail.to != "leo@example.com" || mail.nickname != "leo" {
		t.Fatalf("unexpected mail %+v", mail)
	}
	if !mail.expires.Equal(h.clock.Now().Add(time.Hour)) {
		t.Fatalf("expected 1h expiry, got %v", mail.expires)
	}

	if _, err := h.engine.Authenticate(ctx, reg.AccessToken); err != nil {
		t.Fatalf("access token must work before reset: %v", err)
	}

	h.clock.Advance(2 * time.Second)
	if err := h.engine.ResetPassword(ctx, mail.token, "brand-new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, reg.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("pre-reset access token must be rejected, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("old session must be revoked, got %v", err)
	}
	if _, err := h.engine.Login(ctx, "leo", "longenough1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	fresh, err := h.engine.Login(ctx, "leo", "brand-new-pass")
	if err != nil {
		t.Fatalf("new password must work: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("post-reset access token must work: %v", err)
	}
	if err := h.engine.ResetPassword(ctx, mail.token, "another-pass-1"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("reset token must be single use, got %v", err)
	}
}

func TestPasswordResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	h.registerEmail(t, "mia", "longenough1", "mia@example.com")
	ctx := context.Background()

	if err := h.engine.ForgotPassword(ctx, "mia@example.com"); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Hour + time.Second)
	if err := h.engine.ResetPassword(ctx, h.mailer.last(t).token, "brand-new-pass"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected INVALID_OR_EXPIRED_TOKEN, got %v", err)
	}
}

func TestForgotPasswordSameAnswerForUnknownEmail(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PasswordReset.MinResponseTime = 50 * time.Millisecond })
	h.registerEmail(t, "nina", "longenough1", "nina@example.com")
	ctx := context.Background()

	start := time.Now()
	errKnown := h.engine.ForgotPassword(ctx, "nina@example.com")
	known := time.Since(start)

	start = time.Now()
	errUnknown := h.engine.ForgotPassword(ctx, "ghost@example.com")
	unknown := time.Since(start)

	if errKnown != nil || errUnknown != nil {
		t.Fatalf("expected nil for both, got %v / %v", errKnown, errUnknown)
	}
	if known < 50*time.Millisecond || unknown < 50*time.Millisecond {
		t.Fatalf("expected both padded to 50ms, got %v / %v", known, unknown)
	}
	if h.mailer.count() != 1 {
		t.Fatalf("expected one email, got %d", h.mailer.count())
	}

	if err := h.engine.ForgotPassword(ctx, "bad email"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for malformed email, got %v", err)
	}
}

func TestPasswordResetRateLimit(t *testing.T) {
	h := newHarness(t)
	ctx := WithClientIP(context.Background(), "198.51.100.1")
	for i := 0; i < 3; i++ {
		if err := h.engine.ForgotPassword(ctx, "ghost@example.com"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := h.engine.ResetPassword(ctx, "00", "brand-new-pass"); !errors.Is(err, ErrPasswordResetRateLimited) {
		t.Fatalf("expected PASSWORD_RESET_LIMIT_EXCEEDED, got %v", err)
	}
}

func TestAuthenticateStates(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "oscar", "longenough1")
	ctx := context.Background()

	id, err := h.engine.Authenticate(ctx, reg.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.UserID != reg.User.ID || id.Role != RoleUser || id.Profile.Nickname != "oscar" {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := h.engine.Authenticate(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected NO_TOKEN, got %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not authenticate, got %v", err)
	}

	if _, err := h.engine.SetUserActive(ctx, reg.User.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Authenticate(ctx, reg.AccessToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ACCOUNT_DEACTIVATED, got %v", err)
	}

	h.clock.Advance(16 * time.Minute)
	if _, err := h.engine.Authenticate(ctx, reg.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	var samples uint64
	for _, n := range snap.Histograms[MetricAuthenticateLatency] {
		samples += n
	}
	if samples != 5 {
		t.Fatalf("expected 5 latency samples, got %d", samples)
	}
}

func TestGetMe(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "peggy", "longenough1")
	p, err := h.engine.GetMe(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Nickname != "peggy" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := h.engine.GetMe(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "quinn", "longenough1")
	h.register(t, "rita", "longenough1")
	ctx := context.Background()

	admin := RoleAdmin
	p, err := h.engine.UpdateUser(ctx, reg.User.ID, UserUpdate{Role: &admin})
	if err != nil || p.Role != RoleAdmin {
		t.Fatalf("role change: %+v %v", p, err)
	}
	bogus := Role("root")
	if _, err := h.engine.UpdateUser(ctx, reg.User.ID, UserUpdate{Role: &bogus}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected VALIDATION_ERROR for unknown role, got %v", err)
	}

	n, err := h.engine.RevokeSessions(ctx, reg.User.ID)
	if err != nil || n != 1 {
		t.Fatalf("revoke: n=%d err=%v", n, err)
	}

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, "quinn", "wrong-password")
	}
	if _, err := h.engine.Login(ctx, "quinn", "longenough1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if _, err := h.engine.UnlockUser(ctx, reg.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Login(ctx, "quinn", "longenough1"); err != nil {
		t.Fatalf("expected login after unlock, got %v", err)
	}

	inactive := false
	if _, err := h.engine.UpdateUser(ctx, reg.User.ID, UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}
	if got := h.refreshCount(t, reg.User.ID); got != 0 {
		t.Fatalf("deactivation must revoke sessions, %d left", got)
	}

	page, err := h.engine.ListUsers(ctx, store.ListFilter{Page: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Users) != 1 || page.Pages != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	stats, err := h.engine.UserStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.ByRole["admin"] != 1 || stats.ByStatus["inactive"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := h.engine.DeleteUser(ctx, reg.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.GetUser(ctx, reg.User.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND after delete, got %v", err)
	}
	if _, err := h.engine.FindByNickname(ctx, "RITA"); err != nil {
		t.Fatalf("find by nickname: %v", err)
	}
}
