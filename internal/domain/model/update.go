package model

import (
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
)

// LocationUpdate is a location sample addressed to one user's session.
type LocationUpdate struct {
	UserID     string
	Sample     geo.LocationSample
	ReceivedAt time.Time
	// Generation is stamped by the service when the update is accepted. A
	// refresh for it commits only while no newer update or invalidate has
	// arrived for the user. Zero means untagged.
	Generation uint64
}
