package simulate

import "time"

// HTTP status code constants.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier   = 100
	maxBackpressureRetries = 3
	backpressureBackoff    = 100 * time.Millisecond
	stepInterval           = 5 * time.Second
	metersPerDegree        = 111_320.0
)
