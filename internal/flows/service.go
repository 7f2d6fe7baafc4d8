package flows

import (
	"context"

	"github.com/MrEthical07/nickauth/store"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.FindByNickname != nil && s.deps.Authenticate.VerifyAccess != nil
}

func (s Service) CheckUser(ctx context.Context, nickname string) (*CheckResult, error) {
	return RunCheckUser(ctx, nickname, s.deps.Check)
}

func (s Service) Login(ctx context.Context, nickname, password string) (*AuthResult, error) {
	return RunLogin(ctx, nickname, password, s.deps.Login)
}

func (s Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	return RunRegister(ctx, in, s.deps.Register)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, userID, refreshToken string) {
	RunLogout(ctx, userID, refreshToken, s.deps.Logout)
}

func (s Service) ForgotPassword(ctx context.Context, email string) error {
	return RunForgotPassword(ctx, email, s.deps.Forgot)
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return RunResetPassword(ctx, token, newPassword, s.deps.Reset)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) (*store.User, error) {
	return RunAuthenticate(ctx, accessToken, s.deps.Authenticate)
}

func (s Service) GetMe(ctx context.Context, userID string) (*store.User, error) {
	return RunGetMe(ctx, userID, s.deps.GetMe)
}

func (s Service) ListUsers(ctx context.Context, filter store.ListFilter) (*UserPage, error) {
	return RunListUsers(ctx, filter, s.deps.Admin)
}

func (s Service) FindByNickname(ctx context.Context, nickname string) (*store.User, error) {
	return RunFindByNickname(ctx, nickname, s.deps.Admin)
}

func (s Service) GetUser(ctx context.Context, id string) (*store.User, error) {
	return RunGetUser(ctx, id, s.deps.Admin)
}

func (s Service) SetUserActive(ctx context.Context, id string, active bool) (*store.User, error) {
	return RunSetUserActive(ctx, id, active, s.deps.Admin)
}

func (s Service) SetUserRole(ctx context.Context, id string, role store.Role) (*store.User, error) {
	return RunSetUserRole(ctx, id, role, s.deps.Admin)
}

func (s Service) UnlockUser(ctx context.Context, id string) (*store.User, error) {
	return RunUnlockUser(ctx, id, s.deps.Admin)
}

func (s Service) RevokeSessions(ctx context.Context, id string) (int, error) {
	return RunRevokeSessions(ctx, id, s.deps.Admin)
}

func (s Service) DeleteUser(ctx context.Context, id string) error {
	return RunDeleteUser(ctx, id, s.deps.Admin)
}

func (s Service) UserStats(ctx context.Context) (store.Stats, error) {
	return RunUserStats(ctx, s.deps.Admin)
}
