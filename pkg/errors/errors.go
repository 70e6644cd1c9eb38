package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeTransport ErrorType = "transport_error"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeProtocol  ErrorType = "protocol_error"
	ErrorTypeRejected  ErrorType = "rejected"
	ErrorTypeConfig    ErrorType = "config_error"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// ClientError represents a structured client-side error
type ClientError struct {
	Type    ErrorType
	Message string
	Details string
	Err     error
}

// Error implements the error interface
func (e *ClientError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new client error
func NewClientError(errorType ErrorType, message string, err error, details ...string) *ClientError {
	ce := &ClientError{
		Type:    errorType,
		Message: message,
		Err:     err,
	}
	if len(details) > 0 {
		ce.Details = details[0]
	}
	return ce
}

func NewTransportError(message string, err error, details ...string) *ClientError {
	return NewClientError(ErrorTypeTransport, message, err, details...)
}

func NewTimeoutError(message string, err error, details ...string) *ClientError {
	return NewClientError(ErrorTypeTimeout, message, err, details...)
}

func NewProtocolError(message string, err error, details ...string) *ClientError {
	return NewClientError(ErrorTypeProtocol, message, err, details...)
}

// NewRejectedError carries the message the remote peer sent back with success=false.
func NewRejectedError(message string) *ClientError {
	return NewClientError(ErrorTypeRejected, message, nil)
}

func NewConfigError(message string, details ...string) *ClientError {
	return NewClientError(ErrorTypeConfig, message, nil, details...)
}

// NewNetworkError classifies err as a timeout or a generic transport failure.
func NewNetworkError(message string, err error, details ...string) *ClientError {
	if IsTimeoutCause(err) {
		return NewTimeoutError(message, err, details...)
	}
	return NewTransportError(message, err, details...)
}

// IsTimeoutCause reports whether err was caused by a deadline or a net timeout.
func IsTimeoutCause(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// TypeOf returns the ErrorType of the first ClientError in err's chain.
func TypeOf(err error) ErrorType {
	var ce *ClientError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeUnknown
}

func IsTransport(err error) bool { return TypeOf(err) == ErrorTypeTransport }
func IsTimeout(err error) bool   { return TypeOf(err) == ErrorTypeTimeout }
func IsProtocol(err error) bool  { return TypeOf(err) == ErrorTypeProtocol }
func IsRejected(err error) bool  { return TypeOf(err) == ErrorTypeRejected }
func IsConfig(err error) bool    { return TypeOf(err) == ErrorTypeConfig }

// Retryable reports whether a reconnect attempt could succeed after err.
func Retryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Is and As forward to the standard library so callers need one errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
