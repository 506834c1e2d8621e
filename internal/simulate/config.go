package simulate

import (
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL         string         // Base URL of the service
	Users           int            // Number of simulated users
	Steps           int            // Readings per user
	StepMeters      float64        // Distance walked between readings
	Center          geo.Coordinate // Area the walks start in
	RadiusKm        float64        // Start positions lie within this radius of Center
	Workers         int            // Number of concurrent workers
	Timeout         time.Duration  // HTTP request timeout
	SettleTimeout   time.Duration  // How long to poll for a valid cache per user
	PollInterval    time.Duration  // Delay between nearby polls
	ToleranceMeters float64        // Allowed drift of estimated distances from the last reading
	OutputFile      string         // Optional JSON dump of the generated walks
	Verbose         bool           // Enable verbose logging
}

// Walk is one simulated user's sequence of readings.
type Walk struct {
	UserID   string    `json:"user_id"`
	Readings []Reading `json:"readings"`
}

// Last returns the final reading of the walk.
func (w *Walk) Last() Reading {
	return w.Readings[len(w.Readings)-1]
}

// Reading mirrors the body of POST /location.
type Reading struct {
	UserID            string    `json:"user_id"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	CapturedAt        time.Time `json:"captured_at"`
	PermissionGranted bool      `json:"permission_granted"`
	ServicesEnabled   bool      `json:"services_enabled"`
}

// NearbyResponse mirrors the body of GET /events/nearby.
type NearbyResponse struct {
	UserID     string        `json:"user_id"`
	CacheValid bool          `json:"cache_valid"`
	ComputedAt *time.Time    `json:"computed_at"`
	Events     []NearbyEvent `json:"events"`
}

// NearbyEvent is one ranked event in a NearbyResponse.
type NearbyEvent struct {
	ID            string                  `json:"id"`
	SportID       string                  `json:"sport_id"`
	Status        string                  `json:"status"`
	EventDate     time.Time               `json:"event_date"`
	CreatedAt     time.Time               `json:"created_at"`
	Latitude      float64                 `json:"latitude"`
	Longitude     float64                 `json:"longitude"`
	SkillPriority int                     `json:"skill_priority"`
	Distance      *model.DistanceEstimate `json:"distance"`
}

// Stats holds run statistics.
type Stats struct {
	WalksGenerated        int
	ReadingsSubmitted     int
	ReadingsAccepted      int
	ReadingsBackpressured int
	ReadingsFailed        int
	NearbyRetrieved       int
	NearbyValid           int
	OrderViolations       int
	DistanceViolations    int
	RemoteDistances       int
	EstimatedDistances    int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
