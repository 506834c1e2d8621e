package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitchside/pkg/logger"
)

const randomFloatDivisor = 1000000

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateWalks creates one straight-line walk per simulated user.
func generateWalks(ctx context.Context, config *Config, stats *Stats) ([]Walk, error) {
	if config.Users <= 0 || config.Steps <= 0 {
		return nil, fmt.Errorf("users and steps must be positive (users=%d, steps=%d)", config.Users, config.Steps)
	}
	logger.Get().Info(ctx, "generating walks",
		logger.Int("users", config.Users),
		logger.Int("steps", config.Steps),
		logger.Float64("stepMeters", config.StepMeters))

	end := time.Now().UTC()
	walks := make([]Walk, config.Users)
	for i := range walks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during walk generation: %w", err)
		}
		walks[i] = generateWalk("sim-"+uuid.NewString(), config, end)
	}

	stats.WalksGenerated = len(walks)
	return walks, nil
}

// generateWalk starts at a random point within RadiusKm of Center and moves
// StepMeters per reading along a random bearing. The last reading is
// captured at end.
func generateWalk(userID string, config *Config, end time.Time) Walk {
	lat, lng := offset(
		config.Center.Latitude(), config.Center.Longitude(),
		config.RadiusKm*1000*math.Sqrt(getRandomFloat()),
		2*math.Pi*getRandomFloat(),
	)
	bearing := 2 * math.Pi * getRandomFloat()

	w := Walk{UserID: userID, Readings: make([]Reading, config.Steps)}
	for i := range w.Readings {
		if i > 0 {
			lat, lng = offset(lat, lng, config.StepMeters, bearing)
		}
		w.Readings[i] = Reading{
			UserID:            userID,
			Latitude:          lat,
			Longitude:         lng,
			CapturedAt:        end.Add(-time.Duration(config.Steps-1-i) * stepInterval),
			PermissionGranted: true,
			ServicesEnabled:   true,
		}
	}
	return w
}

// offset moves (lat, lng) by meters along bearing (radians from north) using
// an equirectangular approximation, which is accurate for walking distances.
func offset(lat, lng, meters, bearing float64) (float64, float64) {
	dLat := meters * math.Cos(bearing) / metersPerDegree
	dLng := meters * math.Sin(bearing) / (metersPerDegree * math.Cos(lat*math.Pi/180))

	lat = math.Max(-90, math.Min(90, lat+dLat))
	lng += dLng
	switch {
	case lng > 180:
		lng -= 360
	case lng < -180:
		lng += 360
	}
	return lat, lng
}
