package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PortalError wraps an HTTP status code from the portal so retry and
// auth-expiry logic can inspect it.
type PortalError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("portal HTTP %d", e.StatusCode)
}

func (e *PortalError) Unwrap() error {
	return e.Err
}

// AuthError means the credential exchange failed. It is fatal for the cycle
// but not for the process: the next tick retries from scratch.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError means the job source rejected or errored for one kind. The
// cycle continues with an empty list for that kind. StatusCode is zero for
// transport-level failures.
type FetchError struct {
	Kind       JobKind
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetching %s jobs: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("fetching %s jobs: HTTP %d: %s", e.Kind, e.StatusCode, e.Message)
}

// FilterConfigError means the preference rule set is malformed. It is raised
// at configuration load, never mid-cycle.
type FilterConfigError struct {
	Field  string
	Reason string
}

func (e *FilterConfigError) Error() string {
	return fmt.Sprintf("preference rule %s: %s", e.Field, e.Reason)
}

// IsAuthExpired reports whether err carries a 401/403 from the portal,
// i.e. the out-of-band signal that the session bundle is dead.
func IsAuthExpired(err error) bool {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode == http.StatusUnauthorized || fe.StatusCode == http.StatusForbidden
	}
	return false
}
