package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/store"
)

// AdminMetrics defines metric IDs emitted by admin operations.
type AdminMetrics struct {
	SessionsRevoked    int
	AccountDeactivated int
	AccountDeleted     int
}

// AdminEvents defines audit event names emitted by admin operations.
type AdminEvents struct {
	StatusChange   string
	RoleChange     string
	Unlock         string
	SessionsRevoke string
	Delete         string
}

// AdminDeps defines dependencies for account administration.
type AdminDeps struct {
	FindByID       func(context.Context, string) (*store.User, error)
	FindByNickname func(context.Context, string) (*store.User, error)
	Update         func(context.Context, string, store.MutateFunc) (*store.User, error)
	List           func(context.Context, store.ListFilter) ([]*store.User, int, error)
	Stats          func(context.Context) (store.Stats, error)
	Delete         func(context.Context, string) error
	Now            func() time.Time

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics AdminMetrics
	Events  AdminEvents
	Errors  Errors
}

func (d AdminDeps) normalized() AdminDeps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = noopMetric
	}
	if d.EmitAudit == nil {
		d.EmitAudit = noopAudit
	}
	d.Logger = orNop(d.Logger)
	return d
}

func (d AdminDeps) mapErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return d.Errors.UserNotFound
	}
	return d.Errors.Internal(op, err)
}

// UserPage is one page of an admin listing.
type UserPage struct {
	Users []*store.User
	Total int
	Page  int
	Limit int
}

// Pages returns the number of pages for Total at Limit.
func (p UserPage) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

func RunListUsers(ctx context.Context, filter store.ListFilter, deps AdminDeps) (*UserPage, error) {
	deps = deps.normalized()
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, deps.Errors.Validation(FieldError{Field: "role", Message: "Role must be one of: user, admin"})
	}
	filter = filter.Normalize()
	users, total, err := deps.List(ctx, filter)
	if err != nil {
		return nil, deps.Errors.Internal("list users", err)
	}
	return &UserPage{Users: users, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// RunFindByNickname is the operator lookup used by tooling; it skips the
// auth rate limiter.
func RunFindByNickname(ctx context.Context, nickname string, deps AdminDeps) (*store.User, error) {
	deps = deps.normalized()
	u, err := deps.FindByNickname(ctx, NormalizeNickname(nickname))
	if err != nil {
		return nil, deps.mapErr("find user", err)
	}
	return u, nil
}

func RunGetUser(ctx context.Context, id string, deps AdminDeps) (*store.User, error) {
	deps = deps.normalized()
	u, err := deps.FindByID(ctx, id)
	if err != nil {
		return nil, deps.mapErr("get user", err)
	}
	return u, nil
}

// RunSetUserActive flips the active flag. Deactivation also revokes every
// refresh token.
func RunSetUserActive(ctx context.Context, id string, active bool, deps AdminDeps) (*store.User, error) {
	deps = deps.normalized()
	now := deps.Now()
	u, err := deps.Update(ctx, id, func(u *store.User) error {
		u.IsActive = active
		if !active {
			u.ClearRefreshTokens()
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, deps.mapErr("set user active", err)
	}
	if !active {
		deps.MetricInc(deps.Metrics.AccountDeactivated)
	}
	deps.EmitAudit(ctx, deps.Events.StatusChange, true, u.ID, u.Nickname, nil, func() map[string]string {
		return map[string]string{"is_active": strconv.FormatBool(active)}
	})
	deps.Logger.Info("user status changed", zap.String("user_id", u.ID), zap.Bool("is_active", active))
	return u, nil
}

func RunSetUserRole(ctx context.Context, id string, role store.Role, deps AdminDeps) (*store.User, error) {
	deps = deps.normalized()
	if !role.Valid() {
		return nil, deps.Errors.Validation(FieldError{Field: "role", Message: "Role must be one of: user, admin"})
	}
	now := deps.Now()
	var previous store.Role
	u, err := deps.Update(ctx, id, func(u *store.User) error {
		previous = u.Role
		u.Role = role
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, deps.mapErr("set user role", err)
	}
	deps.EmitAudit(ctx, deps.Events.RoleChange, true, u.ID, u.Nickname, nil, func() map[string]string {
		return map[string]string{"from": string(previous), "to": string(role)}
	})
	deps.Logger.Info("user role changed", zap.String("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

func RunUnlockUser(ctx context.Context, id string, deps AdminDeps) (*store.User, error) {
	deps = deps.normalized()
	now := deps.Now()
	u, err := deps.Update(ctx, id, func(u *store.User) error {
		u.LoginAttempts = 0
		u.LockUntil = nil
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, deps.mapErr("unlock user", err)
	}
	deps.EmitAudit(ctx, deps.Events.Unlock, true, u.ID, u.Nickname, nil, nil)
	return u, nil
}

// RunRevokeSessions clears every refresh token of the user and reports how
// many were dropped.
func RunRevokeSessions(ctx context.Context, id string, deps AdminDeps) (int, error) {
	deps = deps.normalized()
	now := deps.Now()
	var revoked int
	u, err := deps.Update(ctx, id, func(u *store.User) error {
		revoked = len(u.RefreshTokens)
		u.ClearRefreshTokens()
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return 0, deps.mapErr("revoke sessions", err)
	}
	deps.MetricInc(deps.Metrics.SessionsRevoked)
	deps.EmitAudit(ctx, deps.Events.SessionsRevoke, true, u.ID, u.Nickname, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})
	return revoked, nil
}

func RunDeleteUser(ctx context.Context, id string, deps AdminDeps) error {
	deps = deps.normalized()
	if err := deps.Delete(ctx, id); err != nil {
		return deps.mapErr("delete user", err)
	}
	deps.MetricInc(deps.Metrics.AccountDeleted)
	deps.EmitAudit(ctx, deps.Events.Delete, true, id, "", nil, nil)
	deps.Logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

func RunUserStats(ctx context.Context, deps AdminDeps) (store.Stats, error) {
	deps = deps.normalized()
	s, err := deps.Stats(ctx)
	if err != nil {
		return store.Stats{}, deps.Errors.Internal("user stats", err)
	}
	return s, nil
}
