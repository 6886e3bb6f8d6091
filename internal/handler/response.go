package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the API has one
// success shape (the resource itself) and one error shape:
//
//	{"error": "not_found", "message": "classroom not found with id abc123"}
//
// Validation failures add a "fields" object keyed by JSON field name.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/brightminds/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a service failure to its HTTP status and error code.
//
// The service layer never sees HTTP; this is the only place status codes are
// decided. errors.Is walks the AppError chain down to the sentinel.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, apperror.ErrAttemptLimit):
		return http.StatusUnprocessableEntity, "attempt_limit_exceeded"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError sends err in the standard error shape. Internal errors never
// expose their message; the service layer has already logged the cause.
func writeError(w http.ResponseWriter, err error) {
	var invalid *invalidRequest
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: invalid.message,
			Fields:  invalid.fields,
		})
		return
	}

	status, code := statusFor(err)
	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "an unexpected error occurred",
		})
		return
	}

	resp := ErrorResponse{Error: code, Message: appErr.Message}
	if appErr.Field != "" {
		resp.Fields = map[string]string{appErr.Field: appErr.Message}
	}
	writeJSON(w, status, resp)
}

// rejectBody answers a body that failed to decode or validate. The client
// gets the usual 400; the log keeps the route so bad callers are traceable.
func rejectBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Warn("invalid request body",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, err)
}

// orEmpty makes list endpoints return [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
