package api

import (
	"errors"
	"net/http"

	"github.com/okian/pitchside/internal/adapters/location"
	"github.com/okian/pitchside/internal/adapters/mq/queue"
	service "github.com/okian/pitchside/internal/app"
	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/internal/domain/geo"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// Error carries the failing operation and an error kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind annotates err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// classify maps an error to its HTTP status and response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, location.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, location.ErrServiceDisabled):
		return http.StatusForbidden, "location_services_disabled"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrMissingUser),
		errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, distance.ErrInvalidMode):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, distance.ErrUnresolvable):
		return http.StatusUnprocessableEntity, "unresolvable"
	case errors.Is(err, distance.ErrBulkResolution), errors.Is(err, distance.ErrTransient):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
