// internal/httpjson/httpjson.go
package httpjson

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"libraledger/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBody caps request bodies; every request here is a small JSON record.
const maxBody = 1 << 20

// ErrorBody is the wire shape of every failure response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write renders v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.ErrMalformedRequest.Wrap(err)
	}
	return nil
}

// Status maps a failure to its HTTP status.
func Status(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error renders err. Domain failures render only their stable code and
// sentinel message; occurrence detail goes to the log.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := Status(err)
	detail := ErrorDetail{Code: "internal", Message: "internal error"}

	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		detail = ErrorDetail{Code: e.Code, Message: e.Message}
	}
	if status == http.StatusGatewayTimeout {
		detail = ErrorDetail{Code: "timeout", Message: "request timed out"}
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	} else {
		logger.DebugContext(r.Context(), "request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	Write(w, status, ErrorBody{Error: detail})
}

// UUIDParam parses a chi URL parameter as a UUID.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.ErrMalformedRequest.WithDetail("invalid %s", name)
	}
	return id, nil
}

// IntQuery reads an optional integer query parameter; absent means 0.
func IntQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.ErrMalformedRequest.WithDetail("invalid %s", name)
	}
	return n, nil
}
