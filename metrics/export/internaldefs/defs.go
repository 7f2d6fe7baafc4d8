package internaldefs

import (
	"github.com/MrEthical07/nickauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   nickauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   nickauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: nickauth.MetricCheckUser, Name: "nickauth_check_user_total", Help: "Nickname existence checks."},
	{ID: nickauth.MetricLoginSuccess, Name: "nickauth_login_success_total", Help: "Successful logins."},
	{ID: nickauth.MetricLoginFailure, Name: "nickauth_login_failure_total", Help: "Failed logins."},
	{ID: nickauth.MetricLoginLocked, Name: "nickauth_login_locked_total", Help: "Login attempts rejected because the account was locked."},
	{ID: nickauth.MetricAccountLocked, Name: "nickauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: nickauth.MetricAuthRateLimited, Name: "nickauth_auth_rate_limited_total", Help: "Requests rejected by the per-IP auth limiter."},
	{ID: nickauth.MetricRegisterSuccess, Name: "nickauth_register_success_total", Help: "Successful registrations."},
	{ID: nickauth.MetricRegisterConflict, Name: "nickauth_register_conflict_total", Help: "Registrations rejected for a taken nickname or email."},
	{ID: nickauth.MetricCaptchaFailure, Name: "nickauth_captcha_failure_total", Help: "Registrations rejected by captcha."},
	{ID: nickauth.MetricRefreshSuccess, Name: "nickauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: nickauth.MetricRefreshFailure, Name: "nickauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: nickauth.MetricRefreshReuseDetected, Name: "nickauth_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: nickauth.MetricLogout, Name: "nickauth_logout_total", Help: "Logouts."},
	{ID: nickauth.MetricPasswordResetRequest, Name: "nickauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: nickauth.MetricPasswordResetRateLimited, Name: "nickauth_password_reset_rate_limited_total", Help: "Password reset requests rejected by the limiter."},
	{ID: nickauth.MetricPasswordResetConfirmSuccess, Name: "nickauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: nickauth.MetricPasswordResetConfirmFailure, Name: "nickauth_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: nickauth.MetricPasswordRehash, Name: "nickauth_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: nickauth.MetricAuthenticateFailure, Name: "nickauth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: nickauth.MetricSessionsRevoked, Name: "nickauth_sessions_revoked_total", Help: "Bulk session revocations."},
	{ID: nickauth.MetricAccountDeactivated, Name: "nickauth_account_deactivated_total", Help: "Account deactivations."},
	{ID: nickauth.MetricAccountDeleted, Name: "nickauth_account_deleted_total", Help: "Account deletions."},
}

var HistogramDefs = []HistogramDef{
	{ID: nickauth.MetricAuthenticateLatency, Name: "nickauth_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "nickauth_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. A final
// +Inf bucket follows them.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// cannot carry labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
