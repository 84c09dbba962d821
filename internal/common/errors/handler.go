// internal/common/errors/handler.go
package errors

import (
	"fmt"
	"net/http"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ResponseBody is the client-visible error payload.
type ResponseBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler turns errors into HTTP statuses and bodies, logging the full
// error and exposing details only when configured to.
type ErrorHandler struct {
	logger        Logger
	exposeDetails bool
}

func NewErrorHandler(logger Logger, exposeDetails bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, exposeDetails: exposeDetails}
}

// HTTPStatus maps an error code onto a response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Resolve returns the status and body for err.
func (h *ErrorHandler) Resolve(err error, requestID string) (int, ResponseBody) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)
	h.log(stdErr, status, requestID)

	switch stdErr.Code {
	case ErrCodeValidation, ErrCodeNotFound:
		// Client errors are safe to echo back.
		return status, ResponseBody{Error: stdErr.Details, Code: string(stdErr.Code)}
	}
	return status, ResponseBody{
		Error:   stdErr.Message,
		Details: h.details(stdErr, requestID),
		Code:    string(stdErr.Code),
	}
}

// ResolveInternal is used by routes whose contract always answers 500 with
// a fixed message, regardless of the underlying code.
func (h *ErrorHandler) ResolveInternal(err error, requestID string) (int, ResponseBody) {
	stdErr := Normalize(err)
	h.log(stdErr, http.StatusInternalServerError, requestID)
	return http.StatusInternalServerError, ResponseBody{
		Error:   "An internal server error occurred.",
		Details: h.details(stdErr, requestID),
	}
}

func (h *ErrorHandler) details(stdErr *StandardError, requestID string) string {
	if h.exposeDetails {
		return stdErr.Details
	}
	if requestID == "" {
		return string(stdErr.Code)
	}
	return fmt.Sprintf("%s (request %s)", stdErr.Code, requestID)
}

func (h *ErrorHandler) log(stdErr *StandardError, status int, requestID string) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"status":        status,
		"requestId":     requestID,
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}
