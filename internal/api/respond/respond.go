// Package respond holds the JSON plumbing shared by the API handlers.
package respond

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	apperrors "audit-planner/internal/common/errors"
	"audit-planner/internal/common/validation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	RequestIDHeader    = "X-Request-ID"
	errorMessageHeader = "Error-Message"
	maxBodyBytes       = 1 << 20
)

type ctxKey struct{}

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestIDFrom returns the id set by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Responder renders errors through an ErrorHandler.
type Responder struct {
	errors *apperrors.ErrorHandler
}

func New(h *apperrors.ErrorHandler) *Responder {
	return &Responder{errors: h}
}

// Error maps err onto its status code.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	status, body := rs.errors.Resolve(err, RequestIDFrom(r.Context()))
	w.Header().Set(errorMessageHeader, body.Error)
	JSON(w, status, body)
}

// Internal always answers 500 with the fixed internal-error body.
func (rs *Responder) Internal(w http.ResponseWriter, r *http.Request, err error) {
	status, body := rs.errors.ResolveInternal(err, RequestIDFrom(r.Context()))
	JSON(w, status, body)
}

// IDParam parses a positive integer path parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationErrorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// Decode checks the body against schema, then unmarshals it into dst.
func Decode(r *http.Request, schema string, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.NewValidationErrorf("unreadable request body: %v", err)
	}
	result, err := validation.ValidateJSON(schema, body)
	if err != nil {
		return apperrors.NewValidationErrorf("malformed request body: %v", err)
	}
	if !result.Valid {
		return apperrors.NewValidationError(result.Summary())
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.NewValidationErrorf("malformed request body: %v", err)
	}
	return nil
}
