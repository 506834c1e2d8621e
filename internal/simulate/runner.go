// Package simulate drives a running service with simulated walking users and
// checks the nearby lists it returns.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pitchside/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting pitchside simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("steps", config.Steps),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate walks
	walks, err := generateWalks(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("walk generation failed: %w", err)
	}

	// Step 3: Submit readings concurrently
	if err := submitWalks(ctx, config, walks, stats); err != nil {
		return stats, fmt.Errorf("reading submission failed: %w", err)
	}

	// Step 4: Poll nearby lists until caches settle
	responses, err := retrieveNearby(ctx, config, walks, stats)
	if err != nil {
		return stats, fmt.Errorf("nearby retrieval failed: %w", err)
	}

	// Step 5: Verify results
	if err := verifyResults(ctx, config, walks, responses, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Save walks to file
	if config.OutputFile != "" {
		if err := saveWalksToFile(ctx, config.OutputFile, walks); err != nil {
			logger.Get().Warn(ctx, "failed to save walks to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_, _ = readResponseBody(resp)

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// saveWalksToFile writes the generated walks as a JSON array.
func saveWalksToFile(ctx context.Context, filename string, walks []Walk) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(walks); err != nil {
		return fmt.Errorf("failed to write walks: %w", err)
	}

	logger.Get().Info(ctx, "walks saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, readingsPerSecond float64

	if stats.ReadingsSubmitted > 0 {
		acceptRate = float64(stats.ReadingsAccepted) / float64(stats.ReadingsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		readingsPerSecond = float64(stats.ReadingsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("walksGenerated", stats.WalksGenerated),
		logger.Int("readingsSubmitted", stats.ReadingsSubmitted),
		logger.Int("readingsAccepted", stats.ReadingsAccepted),
		logger.Int("readingsBackpressured", stats.ReadingsBackpressured),
		logger.Int("readingsFailed", stats.ReadingsFailed),
		logger.Int("nearbyRetrieved", stats.NearbyRetrieved),
		logger.Int("nearbyValid", stats.NearbyValid),
		logger.Int("remoteDistances", stats.RemoteDistances),
		logger.Int("estimatedDistances", stats.EstimatedDistances),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("readingsPerSecond", readingsPerSecond))
}
