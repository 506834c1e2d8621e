package model

// Source tells where a DistanceEstimate came from.
type Source string

const (
	// SourceRemote is a distance verified by the matrix service.
	SourceRemote Source = "REMOTE"
	// SourceEstimated is a geodesic fallback at an assumed travel speed.
	SourceEstimated Source = "ESTIMATED"
)

// DistanceEstimate is an immutable origin/destination distance result.
// Origin and Destination hold whatever the caller asked for: a "lat,lng"
// pair or an opaque place string.
type DistanceEstimate struct {
	Origin            string  `json:"origin"`
	Destination       string  `json:"destination"`
	DistanceMeters    float64 `json:"distance_meters"`
	DurationSeconds   float64 `json:"duration_seconds"`
	Source            Source  `json:"source"`
	FormattedDistance string  `json:"formatted_distance"`
	FormattedDuration string  `json:"formatted_duration"`
}

// Estimated reports whether the geodesic fallback produced this value.
func (d DistanceEstimate) Estimated() bool {
	return d.Source == SourceEstimated
}
