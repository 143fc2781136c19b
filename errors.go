package smartfetch

import (
	"context"
	"errors"
	"fmt"
)

// Error type discriminators carried by *Error.
const (
	ErrorTypeConfig      = "Config"
	ErrorTypeTransport   = "Transport"
	ErrorTypeCancelled   = "Cancelled"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeValidation  = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrEmptyURL is returned when a run is attempted against a config without a URL.
	ErrEmptyURL = errors.New("smartfetch: empty url")

	// ErrCancelled is returned when a run is cancelled before settling.
	ErrCancelled = errors.New("smartfetch: cancelled")

	// ErrCircuitOpen is returned when the transport circuit breaker is open.
	ErrCircuitOpen = errors.New("smartfetch: circuit open")
)

// Error is the structured error type produced by the fetcher and the bundled
// HTTP transport. Type is one of the ErrorType constants.
type Error struct {
	Type       string
	Message    string
	Cause      error
	Method     string
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Method != "" && e.URL != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.URL)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsCancellation reports whether err represents a cancelled run. Cancellation
// is not treated as a user-facing failure: it is never recorded into instance
// state and never dispatched to OnError, but it still rejects direct callers.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeCancelled
}

// IsConfigError reports whether err stems from an unusable request config.
func IsConfigError(err error) bool {
	if errors.Is(err, ErrEmptyURL) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeConfig
}

func newConfigError(message string, cfg Config) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: message,
		Cause:   ErrEmptyURL,
		Method:  methodLabel(cfg),
		URL:     cfg.URL,
	}
}
