// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/minios/internal/engine"
	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/modules"
	"github.com/ManuGH/minios/internal/process"
	"github.com/ManuGH/minios/internal/sandbox"
	"github.com/ManuGH/minios/internal/shell"
	"github.com/ManuGH/minios/internal/vars"
)

// APIError is the machine-readable error body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// errorResponse is what goes on the wire.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

var (
	ErrUnauthorized   = &APIError{Code: "UNAUTHORIZED", Message: "Authentication required"}
	ErrBadCredentials = &APIError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	ErrBadRequest     = &APIError{Code: "INVALID_INPUT", Message: "Invalid request"}
	ErrNotFound       = &APIError{Code: "NOT_FOUND", Message: "Resource not found"}
	ErrForbidden      = &APIError{Code: "FORBIDDEN", Message: "Access denied"}
	ErrConflict       = &APIError{Code: "CONFLICT", Message: "Resource already exists"}
	ErrRateLimited    = &APIError{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests. Please try again later."}
	ErrUnavailable    = &APIError{Code: "UNAVAILABLE", Message: "System is not running"}
	ErrInternal       = &APIError{Code: "INTERNAL_SERVER_ERROR", Message: "An internal error occurred"}
	ErrStreaming      = &APIError{Code: "STREAMING_UNSUPPORTED", Message: "Streaming is not supported"}
)

// writeJSON writes v with the given status code. Once the header is out the
// status cannot change, so encode failures are only logged.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Int("status", code).Msg("failed to encode JSON response")
	}
}

// RespondError writes apiErr with the request id of r. The first detail, if
// any, is attached as "details".
func RespondError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError, details ...any) {
	body := errorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: log.RequestIDFromContext(r.Context()),
	}
	if len(details) > 0 {
		body.Details = details[0]
	}
	writeJSON(w, status, body)
}

// statusFor maps domain errors to an HTTP status and catalog entry.
func statusFor(err error) (int, *APIError) {
	switch {
	case errors.Is(err, sandbox.ErrNotFound),
		errors.Is(err, modules.ErrModuleNotFound),
		errors.Is(err, process.ErrNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, sandbox.ErrAccessDenied),
		errors.Is(err, modules.ErrProtectedModule):
		return http.StatusForbidden, ErrForbidden
	case errors.Is(err, sandbox.ErrExists),
		errors.Is(err, modules.ErrModuleExists),
		errors.Is(err, modules.ErrUserExists):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, sandbox.ErrIsDir),
		errors.Is(err, sandbox.ErrNotDir),
		errors.Is(err, sandbox.ErrInvalidName),
		errors.Is(err, modules.ErrInvalidModule),
		errors.Is(err, modules.ErrUnknownField),
		errors.Is(err, modules.ErrInvalidCredentials),
		errors.Is(err, vars.ErrInvalidName),
		errors.Is(err, process.ErrUnknownApp),
		errors.Is(err, process.ErrInvalidState),
		errors.Is(err, shell.ErrUsage):
		return http.StatusBadRequest, ErrBadRequest
	case errors.Is(err, engine.ErrNotBooted),
		errors.Is(err, engine.ErrShutdown),
		errors.Is(err, process.ErrTableClosed),
		errors.Is(err, shell.ErrNoProcessTable):
		return http.StatusServiceUnavailable, ErrUnavailable
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// respondErr maps err and writes it. Client errors carry the error text as
// their message; internal errors are logged and hidden.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error().Err(err).Str(log.FieldPath, r.URL.Path).Msg("request failed")
		RespondError(w, r, status, apiErr)
		return
	}
	RespondError(w, r, status, &APIError{Code: apiErr.Code, Message: err.Error()})
}
