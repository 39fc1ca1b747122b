package shipper

import (
	"errors"
	"fmt"
)

// ShipperError represents an error from a shipping gateway.
type ShipperError struct {
	Gateway    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ShipperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Gateway, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Gateway, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ShipperError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ShipperError.
func (e *ShipperError) Is(target error) bool {
	t, ok := target.(*ShipperError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewShipperError creates a new ShipperError.
func NewShipperError(gateway, code, message string) *ShipperError {
	return &ShipperError{
		Gateway: gateway,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *ShipperError) WithCause(err error) *ShipperError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
// 429 and 5xx codes mark the error retryable.
func (e *ShipperError) WithStatusCode(code int) *ShipperError {
	e.StatusCode = code
	if code == 429 || code >= 500 {
		e.Retryable = true
	}
	return e
}

// WithRetryable marks the error as retryable.
func (e *ShipperError) WithRetryable(retryable bool) *ShipperError {
	e.Retryable = retryable
	return e
}

// Error codes shared by gateway implementations.
const (
	CodeMissingCredentials = "AUTH_MISSING_CREDENTIALS"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeTransport          = "TRANSPORT"
	CodeMalformedResponse  = "MALFORMED_RESPONSE"
	CodeRejected           = "REJECTED"
)

// Sentinel errors for common gateway scenarios.
var (
	// ErrAuthenticationFailed indicates gateway authentication failed or
	// credentials are not configured.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrServiceUnavailable indicates the gateway is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimitExceeded indicates the gateway rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMalformedResponse indicates the gateway returned a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed gateway response")

	// ErrInvalidPayload indicates the shipment payload was rejected before sending.
	ErrInvalidPayload = errors.New("invalid shipment payload")

	// ErrShipmentNotFound indicates the shipment ID was not found.
	ErrShipmentNotFound = errors.New("shipment not found")
)

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var shipperErr *ShipperError
	if errors.As(err, &shipperErr) {
		return shipperErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}

// IsAuthError reports whether err is an authentication or credential failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}
