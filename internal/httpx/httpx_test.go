package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/nickauth"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Error   *ErrorBody      `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return Envelope{Success: env.Success, Message: env.Message, Error: env.Error}
}

func TestStatusForKinds(t *testing.T) {
	cases := map[error]int{
		nickauth.ErrUserNotFound:             http.StatusNotFound,
		nickauth.ErrAccountLocked:            http.StatusUnauthorized,
		nickauth.ErrNicknameTaken:            http.StatusConflict,
		nickauth.ErrCaptchaFailed:            http.StatusUnprocessableEntity,
		nickauth.ErrForbidden:                http.StatusForbidden,
		nickauth.ErrPasswordResetRateLimited: http.StatusTooManyRequests,
		nickauth.ErrBadRequest:               http.StatusBadRequest,
		errors.New("boom"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, nil, err)
		assert.Equal(t, want, rec.Code, err.Error())
	}
}

func TestValidationErrorsCarryFields(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, nickauth.NewValidationError(nickauth.FieldError{Field: "nickname", Message: "Nickname is required"}))

	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "nickname", env.Error.Errors[0].Field)
}

func TestDebugOnlyWhenEnabled(t *testing.T) {
	err := nickauth.InternalError("find user", errors.New("dial tcp: refused"))

	rec := httptest.NewRecorder()
	ErrorWriter{}.Write(rec, nil, err)
	assert.Empty(t, decode(t, rec).Error.Debug)

	core, logs := observer.New(zap.ErrorLevel)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec = httptest.NewRecorder()
	ErrorWriter{Debug: true, Logger: zap.New(core)}.Write(rec, req, err)

	body := decode(t, rec).Error
	assert.Contains(t, body.Debug, "dial tcp: refused")
	assert.Equal(t, "Internal server error", body.Message)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/api/auth/me", logs.All()[0].ContextMap()["path"])
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, http.StatusCreated, map[string]string{"id": "1"}, "Registration successful")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"1"},"message":"Registration successful"}`, rec.Body.String())
}
