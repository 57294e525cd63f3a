package caddy

import (
	"errors"
	"fmt"
)

// ErrConflictUnresolved is returned when an import commit is attempted while
// at least one conflicting host has no resolution.
var ErrConflictUnresolved = errors.New("import has unresolved conflicts")

// ValidationError marks bad or inconsistent domain data. It is never
// retried: the same input will fail the same way.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// DuplicateRouteError identifies the exact hosts competing for a domain so
// the operator can fix the collision instead of guessing.
type DuplicateRouteError struct {
	Domain    string
	FirstHost string
	OtherHost string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate domain %q claimed by hosts %s and %s", e.Domain, e.FirstHost, e.OtherHost)
}

// TransientEngineError wraps a network or server-side failure talking to the
// engine admin API. These are retried with bounded backoff.
type TransientEngineError struct {
	Op  string
	Err error
}

func (e *TransientEngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *TransientEngineError) Unwrap() error {
	return e.Err
}

// EngineRejectionError is a structural rejection (4xx) from the engine.
// Retrying the same document cannot succeed, so it is surfaced immediately.
type EngineRejectionError struct {
	Status int
	Body   string
}

func (e *EngineRejectionError) Error() string {
	return fmt.Sprintf("engine rejected configuration (status %d): %s", e.Status, e.Body)
}

// IsTransient reports whether err warrants a retry.
func IsTransient(err error) bool {
	var te *TransientEngineError
	return errors.As(err, &te)
}
