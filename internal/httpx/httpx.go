package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the failure half of Envelope. Debug carries the internal
// cause and is only filled outside production.
type ErrorBody struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Errors  []nickauth.FieldError `json:"errors,omitempty"`
	Debug   string                `json:"debug,omitempty"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind nickauth.Kind) int {
	switch kind {
	case nickauth.KindNotFound:
		return http.StatusNotFound
	case nickauth.KindUnauthorized:
		return http.StatusUnauthorized
	case nickauth.KindConflict:
		return http.StatusConflict
	case nickauth.KindValidation:
		return http.StatusUnprocessableEntity
	case nickauth.KindForbidden:
		return http.StatusForbidden
	case nickauth.KindRateLimited:
		return http.StatusTooManyRequests
	case nickauth.KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorWriter translates errors into failure envelopes. It is the only
// place where error kinds become status codes.
type ErrorWriter struct {
	// Debug exposes the internal cause in the envelope.
	Debug  bool
	Logger *zap.Logger
}

func (ew ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	e := nickauth.AsError(err)
	status := StatusFor(e.Kind)

	body := &ErrorBody{
		Code:    e.Code,
		Message: e.Message,
		Errors:  e.Fields,
	}
	if ew.Debug && e.Err != nil {
		body.Debug = e.Err.Error()
	}

	if status >= http.StatusInternalServerError && ew.Logger != nil {
		fields := []zap.Field{
			zap.String("code", e.Code),
			zap.Error(errors.Unwrap(e)),
		}
		if r != nil {
			fields = append(fields,
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", nickauth.RequestIDFromContext(r.Context())),
			)
		}
		ew.Logger.Error("request failed", fields...)
	}

	WriteJSON(w, status, Envelope{Success: false, Error: body})
}

// WriteError writes err without debug details or logging.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ErrorWriter{}.Write(w, r, err)
}
