package nickauth

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups error codes by how a transport should answer them.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindConflict
	KindValidation
	KindForbidden
	KindRateLimited
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type every Engine operation returns. Code is stable
// and safe to show to clients; Err holds the internal cause, if any, and is
// never meant for clients in production.
//
// Two *Error values match under errors.Is when their codes are equal, so
// callers compare against the sentinels below:
//
//	if errors.Is(err, nickauth.ErrAccountLocked) { ... }
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of e carrying err.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// WithMessage returns a copy of e with a different client message.
func (e *Error) WithMessage(msg string) *Error {
	out := *e
	out.Message = msg
	return &out
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUnauthorized        = newError(KindUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrNoToken             = newError(KindUnauthorized, "NO_TOKEN", "No token provided")
	ErrInvalidToken        = newError(KindUnauthorized, "INVALID_TOKEN", "Invalid token")
	ErrTokenExpired        = newError(KindUnauthorized, "TOKEN_EXPIRED", "Token expired")
	ErrInvalidCredentials  = newError(KindUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	ErrAccountLocked       = newError(KindUnauthorized, "ACCOUNT_LOCKED", "Account is temporarily locked due to multiple failed attempts")
	ErrAccountDeactivated  = newError(KindUnauthorized, "ACCOUNT_DEACTIVATED", "Account is deactivated")
	ErrInvalidRefreshToken = newError(KindUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid refresh token")

	ErrUserNotFound = newError(KindNotFound, "USER_NOT_FOUND", "User not found")
	ErrNotFound     = newError(KindNotFound, "NOT_FOUND", "Resource not found")

	ErrNicknameTaken = newError(KindConflict, "NICKNAME_TAKEN", "Nickname already exists")
	ErrEmailTaken    = newError(KindConflict, "EMAIL_TAKEN", "Email already exists")

	ErrValidation            = newError(KindValidation, "VALIDATION_ERROR", "Validation failed")
	ErrCaptchaFailed         = newError(KindValidation, "CAPTCHA_FAILED", "Captcha validation failed")
	ErrInvalidOrExpiredToken = newError(KindValidation, "INVALID_OR_EXPIRED_TOKEN", "Invalid or expired reset token")

	ErrForbidden = newError(KindForbidden, "FORBIDDEN", "Insufficient permissions")

	ErrAuthRateLimited          = newError(KindRateLimited, "AUTH_RATE_LIMIT_EXCEEDED", "Too many authentication attempts, please try again later")
	ErrPasswordResetRateLimited = newError(KindRateLimited, "PASSWORD_RESET_LIMIT_EXCEEDED", "Too many password reset attempts, please try again later")

	ErrBadRequest = newError(KindBadRequest, "BAD_REQUEST", "Malformed request")
	ErrInternal   = newError(KindInternal, "INTERNAL_ERROR", "Internal server error")

	// ErrEngineNotReady is returned by every operation of an Engine that
	// was not produced by Builder.Build.
	ErrEngineNotReady = errors.New("nickauth: engine not initialized")
)

// NewValidationError builds a VALIDATION_ERROR carrying field errors.
func NewValidationError(fields ...FieldError) *Error {
	out := *ErrValidation
	out.Fields = append([]FieldError(nil), fields...)
	return &out
}

// InternalError wraps a backend fault as INTERNAL_ERROR, keeping the cause.
func InternalError(op string, err error) *Error {
	return ErrInternal.WithCause(fmt.Errorf("%s: %w", op, err))
}

// AsError extracts the *Error from err. Foreign errors are reported as
// INTERNAL_ERROR with err as the cause.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}
