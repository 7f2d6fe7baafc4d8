package nickauth

import (
	"context"
	"strings"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventAccountLocked        = "account_locked"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventAccountStatusChange  = "account_status_change"
	auditEventRoleChange           = "account_role_change"
	auditEventAccountUnlock        = "account_unlock"
	auditEventSessionsRevoked      = "sessions_revoked"
	auditEventAccountDeleted       = "account_deleted"
)

// emitAudit matches flows.AuditFunc. The error is recorded by its public
// code, lowercased; internal causes never reach the sink.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	nickname string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Nickname:  nickname,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = strings.ToLower(AsError(err).Code)
	}

	e.audit.Emit(ctx, event)
}
