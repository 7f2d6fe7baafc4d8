package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/store"
)

const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// CheckMetrics defines metric IDs emitted by RunCheckUser.
type CheckMetrics struct {
	Check       int
	RateLimited int
}

// CheckEvents defines audit event names emitted by RunCheckUser.
type CheckEvents struct {
	RateLimited string
}

// CheckDeps defines dependencies for nickname existence checks.
type CheckDeps struct {
	FindByNickname func(context.Context, string) (*store.User, error)
	ClientIP       func(context.Context) string
	Rate           AuthRate

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics CheckMetrics
	Events  CheckEvents
	Errors  Errors
}

// CheckResult reports whether a nickname is registered and what the client
// should do next.
type CheckResult struct {
	Exists bool
	Action string
}

// RunCheckUser looks a nickname up without side effects on the account.
func RunCheckUser(ctx context.Context, nickname string, deps CheckDeps) (res *CheckResult, err error) {
	if deps.ClientIP == nil {
		deps.ClientIP = noIP
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	logger := orNop(deps.Logger)
	ip := deps.ClientIP(ctx)

	if !deps.Rate.admit(ctx, ip, logger) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", deps.Errors.AuthRateLimited, func() map[string]string {
			return map[string]string{"scope": "auth", "operation": "check"}
		})
		return nil, deps.Errors.AuthRateLimited
	}
	defer func() { deps.Rate.fail(ctx, ip, err, deps.Errors.AuthRateLimited, logger) }()

	nickname = NormalizeNickname(nickname)
	if nickname == "" {
		return nil, deps.Errors.Validation(FieldError{Field: "nickname", Message: "Nickname is required"})
	}
	deps.MetricInc(deps.Metrics.Check)

	u, err := deps.FindByNickname(ctx, nickname)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("user not found, registration required", zap.String("nickname", nickname))
		return &CheckResult{Exists: false, Action: ActionRegister}, nil
	case err != nil:
		return nil, deps.Errors.Internal("check user", err)
	}
	logger.Info("user found, password required", zap.String("user_id", u.ID))
	return &CheckResult{Exists: true, Action: ActionLogin}, nil
}
