// Package middleware provides the HTTP middleware chain and the shared
// error-response envelope used by every handler.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/darshjasani/Pulse/internal/model"
)

// ErrorResponseBody is the standardized API error envelope.
type ErrorResponseBody struct {
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindConflict:
		return http.StatusConflict
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as the standard envelope with the status its
// kind maps to. Internal errors are logged with context and masked with
// a generic detail; everything else carries its own message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	detail := err.Error()
	if e, ok := err.(*model.Error); ok {
		detail = e.Message
	}
	if kind == model.KindInternal {
		slog.Error("internal error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		detail = "internal server error"
	}
	WriteErrorResponse(w, statusOf(kind), detail, string(kind))
}

// WriteErrorResponse writes the envelope directly, for call sites that
// are not wrapping a service error.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, detail, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Detail: detail, Type: errType})
}
