package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error codes.
const (
	ErrBadRequest          = "BAD_REQUEST"
	ErrNotFound            = "NOT_FOUND"
	ErrMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	ErrValidationError     = "VALIDATION_ERROR"
	ErrConfiguration       = "CONFIGURATION_ERROR"
	ErrCorrelation         = "CORRELATION_ERROR"
	ErrUpstream            = "UPSTREAM_ERROR"
	ErrUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ErrUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrInternalError       = "INTERNAL_ERROR"
)

// statusForCode maps envelope codes to HTTP status codes.
var statusForCode = map[string]int{
	ErrBadRequest:          http.StatusBadRequest,
	ErrNotFound:            http.StatusNotFound,
	ErrMethodNotAllowed:    http.StatusMethodNotAllowed,
	ErrValidationError:     http.StatusUnprocessableEntity,
	ErrConfiguration:       http.StatusInternalServerError,
	ErrCorrelation:         http.StatusInternalServerError,
	ErrUpstream:            http.StatusBadGateway,
	ErrUpstreamTimeout:     http.StatusGatewayTimeout,
	ErrUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrInternalError:       http.StatusInternalServerError,
}

// ErrorEnvelope is the error body returned by every facade endpoint.
// It implements the error interface.
type ErrorEnvelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ErrorEnvelope) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the HTTP status code for the envelope's code.
func (e *ErrorEnvelope) HTTPStatus() int {
	if s, ok := statusForCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error for an unknown facade route.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewMethodNotAllowedError returns a METHOD_NOT_ALLOWED error.
func NewMethodNotAllowedError(method string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrMethodNotAllowed, Message: fmt.Sprintf("method %s is not allowed", method)}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewConfigurationError reports settings that must be present before a
// request can be served. Missing keys are listed in details.
func NewConfigurationError(missing []string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrConfiguration,
		Message: "Required configuration is missing: " + strings.Join(missing, ", "),
		Details: map[string]any{"missing": missing},
	}
}

// NewCorrelationError reports data required to address the remote journey
// instance that is absent locally.
func NewCorrelationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCorrelation, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewUpstreamUnavailableError returns an UPSTREAM_UNAVAILABLE error.
func NewUpstreamUnavailableError(service string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUpstreamUnavailable,
		Message: fmt.Sprintf("The %s service is temporarily unavailable", service),
	}
}

// NewUpstreamTimeoutError returns an UPSTREAM_TIMEOUT error.
func NewUpstreamTimeoutError(service string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUpstreamTimeout,
		Message: fmt.Sprintf("The %s service did not respond in time", service),
	}
}

// UpstreamError is a non-2xx response from the journey engine or the offer API.
type UpstreamError struct {
	Service   string
	Operation string
	Status    int
	Body      string
	// Message is the human-readable message carried by the body, if any.
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Service, e.Operation, e.Status)
}

// IsTransientNotFound reports whether err is an upstream 404 that carries a
// message. The engine answers this way while a freshly navigated instance is
// not yet visible on its query side.
func IsTransientNotFound(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Status == http.StatusNotFound && strings.TrimSpace(ue.Message) != ""
}

// AsEnvelope converts any error into an ErrorEnvelope suitable for the
// client. Upstream failures keep their status and body in details.
func AsEnvelope(err error) *ErrorEnvelope {
	if err == nil {
		return nil
	}
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		msg := ue.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s failed with status %d", ue.Service, ue.Operation, ue.Status)
		}
		return &ErrorEnvelope{
			Code:    ErrUpstream,
			Message: msg,
			Details: map[string]any{
				"service":   ue.Service,
				"operation": ue.Operation,
				"status":    ue.Status,
				"body":      ue.Body,
			},
			cause: err,
		}
	}
	env := NewInternalError()
	env.Details = err.Error()
	env.cause = err
	return env
}
