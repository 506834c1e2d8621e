package distance

import (
	"fmt"
	"math"
)

// FallbackSpeedMps is the assumed average speed of the geodesic estimate (~30 km/h).
const FallbackSpeedMps = 8.33

const (
	metersPerKm      = 1000.0
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// FormatDistance renders meters as "{m} m" below one kilometer and "{km} km" otherwise.
func FormatDistance(meters float64) string {
	m := math.Round(meters)
	if m < metersPerKm {
		return fmt.Sprintf("%d m", int64(m))
	}
	return fmt.Sprintf("%.1f km", meters/metersPerKm)
}

// FormatDuration renders seconds as seconds, minutes, or hours and minutes.
func FormatDuration(seconds float64) string {
	s := int64(math.Round(seconds))
	switch {
	case s < secondsPerMinute:
		return fmt.Sprintf("%d sec", s)
	case s < secondsPerHour:
		return fmt.Sprintf("%d min", s/secondsPerMinute)
	default:
		h := s / secondsPerHour
		m := (s % secondsPerHour) / secondsPerMinute
		if m == 0 {
			return fmt.Sprintf("%d h", h)
		}
		return fmt.Sprintf("%d h %d min", h, m)
	}
}
