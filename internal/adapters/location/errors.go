package location

import "errors"

// Sentinel kinds for location acquisition errors.
var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrServiceDisabled  = errors.New("location services disabled")
)
