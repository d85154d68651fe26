package codexpc

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrStartFailed indicates the foreign surface returned a null reference for a start call.
	ErrStartFailed = errors.New("codexpc: start failed")

	// ErrRender indicates the conversation could not be rendered into tokens.
	ErrRender = errors.New("codexpc: token rendering failed")

	// ErrSurfaceUnavailable indicates the foreign surface is not compiled into this binary.
	ErrSurfaceUnavailable = errors.New("codexpc: surface unavailable")

	// ErrStreamClosed indicates an operation on a released handle or a closed stream.
	ErrStreamClosed = errors.New("codexpc: stream closed")

	// ErrInvalidRequest indicates the prompt or its parameters are invalid.
	ErrInvalidRequest = errors.New("codexpc: invalid request")
)

// StreamError is a failure reported by the daemon through an error event.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCancelled returns true if the daemon ended the request because it was cancelled.
func (e *StreamError) IsCancelled() bool {
	return e.Code == "cancelled"
}

// EnvVarError reports a required environment variable that is not set.
type EnvVarError struct {
	Var          string // Primary variable name
	Alternatives []string
	Instructions string // How to obtain or set the value
}

func (e *EnvVarError) Error() string {
	names := append([]string{e.Var}, e.Alternatives...)
	msg := fmt.Sprintf("%s not set", strings.Join(names, " or "))
	if e.Instructions != "" {
		msg += ": " + e.Instructions
	}
	return msg
}

// ValidationError represents an error in request validation.
type ValidationError struct {
	Field  string // The prompt field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProviderError represents a failure to start or run a request on a provider.
type ProviderError struct {
	Provider ProviderID // The provider that failed
	Op       string     // Operation, e.g. "start", "exec"
	Message  string     // Human-readable detail
	Err      error      // Wrapped cause (ErrStartFailed, ErrSurfaceUnavailable, ...)
}

func (e *ProviderError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("provider '%s' %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("provider '%s' %s: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest checks if an error indicates an invalid prompt.
// These errors require request changes.
func IsInvalidRequest(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidRequest) {
		return true
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsStreamError reports whether err carries a daemon error event and returns it.
func IsStreamError(err error) (*StreamError, bool) {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr, true
	}
	return nil, false
}

// IsUnavailable checks if the provider cannot run at all in this environment
// (surface not compiled in, missing configuration, daemon refused to start).
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSurfaceUnavailable) || errors.Is(err, ErrStartFailed) {
		return true
	}
	var envErr *EnvVarError
	return errors.As(err, &envErr)
}
