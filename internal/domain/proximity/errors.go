package proximity

import "errors"

// Sentinel kinds for proximity cache errors.
var (
	// ErrStaleRefresh means a newer refresh or invalidation superseded this one before commit.
	ErrStaleRefresh = errors.New("refresh superseded by a newer sample")
	// ErrRefreshAborted means the refresh could not produce a result set; the previous entry is kept.
	ErrRefreshAborted = errors.New("refresh aborted")
)
