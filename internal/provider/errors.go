package provider

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout       = errors.New("provider timeout")
	ErrRateLimited   = errors.New("provider rate limited")
	ErrConfiguration = errors.New("provider misconfigured")
	ErrProvider      = errors.New("provider error")
)

// Error is returned by provider clients. Kind is one of the sentinel errors
// above so callers can branch with errors.Is.
type Error struct {
	Provider string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a provider error of the given kind.
func NewError(provider string, kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// IsRetryable reports whether err is a timeout or rate-limit failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}
