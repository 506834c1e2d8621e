package distance

import (
	"errors"
	"fmt"
)

// Sentinel kinds for distance resolution errors.
var (
	// ErrConfiguration means no matrix credential is configured. Non-fatal: triggers fallback.
	ErrConfiguration = errors.New("distance service not configured")
	// ErrTransient covers network failures, timeouts and non-success service statuses.
	ErrTransient = errors.New("transient distance resolution failure")
	// ErrUnresolvable means neither the remote nor the geodesic path could produce a distance.
	ErrUnresolvable = errors.New("distance unresolvable")
	// ErrBulkResolution is a whole-batch failure of a bulk call.
	ErrBulkResolution = errors.New("bulk distance resolution failed")
	// ErrInvalidMode is returned for unknown travel modes.
	ErrInvalidMode = errors.New("invalid travel mode")
)

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns an error of the given kind wrapping err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
