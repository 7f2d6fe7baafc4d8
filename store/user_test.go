package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestAddRefreshTokenEvictsOldest(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := &User{}

	for i := 0; i < 8; i++ {
		u.AddRefreshToken(RefreshToken{
			TokenHash: fmt.Sprintf("h%d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			ExpiresAt: now.Add(time.Hour),
		}, 5, now)
		if len(u.RefreshTokens) > 5 {
			t.Fatalf("bound exceeded after insert %d: %d entries", i, len(u.RefreshTokens))
		}
	}

	var got []string
	for _, tok := range u.RefreshTokens {
		got = append(got, tok.TokenHash)
	}
	want := []string{"h3", "h4", "h5", "h6", "h7"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected token order (-want +got):\n%s", diff)
	}
}

func TestAddRefreshTokenPrunesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := &User{RefreshTokens: []RefreshToken{
		{TokenHash: "old", ExpiresAt: now.Add(-time.Minute)},
		{TokenHash: "live", ExpiresAt: now.Add(time.Minute)},
	}}

	u.AddRefreshToken(RefreshToken{TokenHash: "new", ExpiresAt: now.Add(time.Hour)}, 5, now)

	if u.HasRefreshToken("old", now) {
		t.Fatal("expected expired token to be pruned")
	}
	if !u.HasRefreshToken("live", now) || !u.HasRefreshToken("new", now) {
		t.Fatalf("expected live tokens to remain, got %+v", u.RefreshTokens)
	}
}

func TestHasRefreshTokenTreatsExpiredAsAbsent(t *testing.T) {
	now := time.Now()
	u := &User{RefreshTokens: []RefreshToken{{TokenHash: "a", ExpiresAt: now}}}
	if u.HasRefreshToken("a", now) {
		t.Fatal("expected token expiring exactly now to be absent")
	}
}

func TestRemoveRefreshToken(t *testing.T) {
	u := &User{RefreshTokens: []RefreshToken{{TokenHash: "a"}, {TokenHash: "b"}}}
	if !u.RemoveRefreshToken("a") {
		t.Fatal("expected removal to report true")
	}
	if u.RemoveRefreshToken("a") {
		t.Fatal("expected second removal to report false")
	}
	if len(u.RefreshTokens) != 1 || u.RefreshTokens[0].TokenHash != "b" {
		t.Fatalf("unexpected tokens: %+v", u.RefreshTokens)
	}
}

func TestIsLockedIsDerivedFromLockUntil(t *testing.T) {
	now := time.Now()
	u := &User{}
	if u.IsLocked(now) {
		t.Fatal("nil LockUntil must not be locked")
	}
	past := now.Add(-time.Second)
	u.LockUntil = &past
	if u.IsLocked(now) {
		t.Fatal("expired lock must not be locked")
	}
	future := now.Add(time.Minute)
	u.LockUntil = &future
	if !u.IsLocked(now) {
		t.Fatal("future lock must be locked")
	}
}

func TestResetTokenValid(t *testing.T) {
	now := time.Now()
	exp := now.Add(time.Hour)
	u := &User{PasswordResetToken: "abc", PasswordResetExpires: &exp}

	if !u.ResetTokenValid("abc", now) {
		t.Fatal("expected matching token to be valid")
	}
	if u.ResetTokenValid("abd", now) {
		t.Fatal("expected mismatched token to be invalid")
	}
	if u.ResetTokenValid("abc", exp) {
		t.Fatal("expected token at expiry to be invalid")
	}
	u.ClearPasswordReset()
	if u.ResetTokenValid("abc", now) {
		t.Fatal("expected cleared token to be invalid")
	}
}

func TestTokenPredatesPasswordChange(t *testing.T) {
	changed := time.Date(2026, 1, 1, 12, 0, 5, 400_000_000, time.UTC)
	u := &User{}
	if u.TokenPredatesPasswordChange(changed.Add(-time.Hour)) {
		t.Fatal("a user who never changed their password has no stale tokens")
	}

	u.PasswordChangedAt = &changed
	if !u.TokenPredatesPasswordChange(changed.Add(-time.Second).Truncate(time.Second)) {
		t.Fatal("expected a token from the previous second to be stale")
	}
	if u.TokenPredatesPasswordChange(changed.Truncate(time.Second)) {
		t.Fatal("expected a token from the change second to pass")
	}
	if u.TokenPredatesPasswordChange(changed.Add(time.Minute)) {
		t.Fatal("expected a later token to pass")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	lock := time.Now()
	u := &User{LockUntil: &lock, PasswordChangedAt: &lock, RefreshTokens: []RefreshToken{{TokenHash: "a"}}}
	c := u.Clone()
	c.RefreshTokens[0].TokenHash = "changed"
	*c.LockUntil = lock.Add(time.Hour)
	*c.PasswordChangedAt = lock.Add(time.Hour)

	if u.RefreshTokens[0].TokenHash != "a" {
		t.Fatal("clone aliased refresh tokens")
	}
	if !u.LockUntil.Equal(lock) {
		t.Fatal("clone aliased LockUntil")
	}
	if !u.PasswordChangedAt.Equal(lock) {
		t.Fatal("clone aliased PasswordChangedAt")
	}
}

func TestPublicProfileOmitsSecrets(t *testing.T) {
	u := &User{
		ID:                 "id-1",
		Nickname:           "alice_01",
		PasswordHash:       "$argon2id$secret",
		Role:               RoleUser,
		IsActive:           true,
		PasswordResetToken: "reset",
		RefreshTokens:      []RefreshToken{{TokenHash: "h"}},
	}
	p := NewPublicProfile(u)
	want := PublicProfile{ID: "id-1", Nickname: "alice_01", Role: RoleUser, IsActive: true}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("unexpected profile (-want +got):\n%s", diff)
	}
}

func TestConflictErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("insert: %w", &ConflictError{Field: FieldEmail})
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected ConflictError to match ErrConflict")
	}
	field, ok := ConflictField(err)
	if !ok || field != FieldEmail {
		t.Fatalf("expected email conflict, got %q %v", field, ok)
	}
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Page: 0, Limit: 500}.Normalize()
	if f.Page != 1 || f.Limit != 100 {
		t.Fatalf("unexpected normalized filter: %+v", f)
	}
	if off := (ListFilter{Page: 3, Limit: 10}).Offset(); off != 20 {
		t.Fatalf("expected offset 20, got %d", off)
	}
}
