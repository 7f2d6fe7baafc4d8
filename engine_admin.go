package nickauth

import (
	"context"

	"github.com/MrEthical07/nickauth/store"
)

// ListUsers returns one page of users. Limit is clamped to 1..100.
func (e *Engine) ListUsers(ctx context.Context, filter store.ListFilter) (*UserPage, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	page, err := e.flow.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &UserPage{
		Users: make([]PublicProfile, 0, len(page.Users)),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
		Pages: page.Pages(),
	}
	for _, u := range page.Users {
		out.Users = append(out.Users, store.NewPublicProfile(u))
	}
	return out, nil
}

func (e *Engine) GetUser(ctx context.Context, id string) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return profileOf(e.flow.GetUser(ctx, id))
}

// UpdateUser applies the admin-editable fields. The role is applied before
// the status; a rejected role leaves the account untouched.
func (e *Engine) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if upd.Role == nil && upd.IsActive == nil {
		return e.GetUser(ctx, id)
	}
	var (
		u   *store.User
		err error
	)
	if upd.Role != nil {
		if u, err = e.flow.SetUserRole(ctx, id, *upd.Role); err != nil {
			return nil, err
		}
	}
	if upd.IsActive != nil {
		if u, err = e.flow.SetUserActive(ctx, id, *upd.IsActive); err != nil {
			return nil, err
		}
	}
	return profileOf(u, nil)
}

// SetUserActive activates or deactivates id. Deactivation revokes every
// session.
func (e *Engine) SetUserActive(ctx context.Context, id string, active bool) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return profileOf(e.flow.SetUserActive(ctx, id, active))
}

func (e *Engine) SetUserRole(ctx context.Context, id string, role Role) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return profileOf(e.flow.SetUserRole(ctx, id, role))
}

// UnlockUser clears the failure counter and any lock.
func (e *Engine) UnlockUser(ctx context.Context, id string) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return profileOf(e.flow.UnlockUser(ctx, id))
}

// RevokeSessions drops every refresh token of id and reports how many were
// stored.
func (e *Engine) RevokeSessions(ctx context.Context, id string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.flow.RevokeSessions(ctx, id)
}

func (e *Engine) DeleteUser(ctx context.Context, id string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.DeleteUser(ctx, id)
}

func (e *Engine) UserStats(ctx context.Context) (store.Stats, error) {
	if !e.ready() {
		return store.Stats{}, ErrEngineNotReady
	}
	return e.flow.UserStats(ctx)
}

// FindByNickname resolves a nickname for operator tooling. It bypasses the
// rate limiter and returns ErrUserNotFound when absent.
func (e *Engine) FindByNickname(ctx context.Context, nickname string) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return profileOf(e.flow.FindByNickname(ctx, nickname))
}

func profileOf(u *store.User, err error) (*PublicProfile, error) {
	if err != nil {
		return nil, err
	}
	p := store.NewPublicProfile(u)
	return &p, nil
}
