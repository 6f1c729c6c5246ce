// Package errors provides structured errors for the broker's failure taxonomy,
// with WebSocket close-code and HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pscheid92/hashpipe/internal/domain"
)

// ErrorType represents the category of error for metrics, logging and remediation.
type ErrorType string

const (
	// TypeCapacityExceeded rejects a connection because the registry is full (close 1008)
	TypeCapacityExceeded ErrorType = "capacity_exceeded"
	// TypeOversizeMessage closes a connection that sent a frame over the limit (close 1009)
	TypeOversizeMessage ErrorType = "oversize_message"
	// TypeMalformedPayload discards a frame that is not a JSON object; the connection survives
	TypeMalformedPayload ErrorType = "malformed_payload"
	// TypeDeliveryFailure evicts a single recipient
	TypeDeliveryFailure ErrorType = "delivery_failure"
	// TypeTransportError is an abnormal socket closure
	TypeTransportError ErrorType = "transport_error"
	// TypeValidation indicates invalid HTTP input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeRateLimited indicates too many connection attempts (HTTP 429)
	TypeRateLimited ErrorType = "rate_limited"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Sentinels for errors.Is. Every *Error of the matching type reports Is == true.
var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrOversizeMessage  = errors.New("oversize message")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the taxonomy sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCapacityExceeded:
		return e.Type == TypeCapacityExceeded
	case ErrOversizeMessage:
		return e.Type == TypeOversizeMessage
	case ErrMalformedPayload:
		return e.Type == TypeMalformedPayload
	}
	return false
}

// Fatal reports whether the error must tear down the offending connection.
func (e *Error) Fatal() bool {
	switch e.Type {
	case TypeCapacityExceeded, TypeOversizeMessage, TypeDeliveryFailure, TypeTransportError:
		return true
	default:
		return false
	}
}

// CloseCode returns the WebSocket close code used when the error closes a connection.
func (e *Error) CloseCode() int {
	switch e.Type {
	case TypeCapacityExceeded:
		return domain.CloseTooManyClients
	case TypeOversizeMessage:
		return domain.CloseMessageTooLong
	default:
		return domain.CloseShutdown
	}
}

// CloseReason returns the human-readable close reason paired with CloseCode.
func (e *Error) CloseReason() string {
	switch e.Type {
	case TypeCapacityExceeded:
		return domain.ReasonTooManyClients
	case TypeOversizeMessage:
		return domain.ReasonMessageTooLong
	default:
		return e.Message
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeMalformedPayload:
		return http.StatusBadRequest
	case TypeOversizeMessage:
		return http.StatusRequestEntityTooLarge
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeCapacityExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CapacityExceeded creates a connection-time rejection.
func CapacityExceeded(maxClients int) *Error {
	return &Error{
		Type:    TypeCapacityExceeded,
		Message: fmt.Sprintf("max clients (%d) reached", maxClients),
		Context: map[string]any{"max_clients": maxClients},
	}
}

// OversizeMessage creates an oversize-frame error.
func OversizeMessage(size, limit int) *Error {
	return &Error{
		Type:    TypeOversizeMessage,
		Message: fmt.Sprintf("message of %d bytes exceeds limit of %d", size, limit),
		Context: map[string]any{"bytes": size, "limit": limit},
	}
}

// MalformedPayload creates a parse failure.
func MalformedPayload(cause error) *Error {
	return &Error{
		Type:    TypeMalformedPayload,
		Message: "failed to parse message",
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// DeliveryFailure creates a per-recipient send failure.
func DeliveryFailure(message string, cause error) *Error {
	return &Error{
		Type:    TypeDeliveryFailure,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// TransportError creates an abnormal-closure error.
func TransportError(message string, cause error) *Error {
	return &Error{
		Type:    TypeTransportError,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// RateLimited creates a connection rate limit error (HTTP 429).
func RateLimited(message string) *Error {
	return &Error{
		Type:    TypeRateLimited,
		Message: message,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithField adds a context field (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// LogAttrs flattens the error into slog key/value pairs.
func (e *Error) LogAttrs() []any {
	attrs := []any{"error_type", e.Type, "message", e.Message}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause)
	}
	return attrs
}

// ErrorResponse represents the JSON structure sent to HTTP clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
