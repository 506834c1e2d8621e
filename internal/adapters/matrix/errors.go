package matrix

import "errors"

// Sentinel kinds for matrix client errors.
var (
	ErrMissingAPIKey = errors.New("matrix api key is empty")
	ErrHTTPStatus    = errors.New("matrix http status not ok")
)
