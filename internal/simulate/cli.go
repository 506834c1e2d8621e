package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/pitchside/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the global logger, writing to stdout and, when
// logFile is set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string) (func(), error) {
	if logFile == "" {
		if err := logger.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() {}, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	if err := logger.Init(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return func() { _ = file.Close() }, nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Pitchside Walk Simulator
========================

Drives a running pitchside service with simulated users walking around an
area, then checks every user's nearby list for ranking order and distance
consistency.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of simulated users (default 100)
  -steps int
        Readings per user (default 5)
  -step float
        Meters walked between readings (default 60)
  -center string
        Start area as "lat,lng" (default "41.0082,28.9784")
  -radius float
        Start positions lie within this many km of center (default 5)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for each user's cache to become valid (default 30s)
  -tolerance float
        Allowed meters between an estimated distance and the last reading (default 101)
  -output string
        Write the generated walks to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run ./cmd/simulate

  # Many users moving fast enough to refresh on every reading
  go run ./cmd/simulate -users 2000 -step 250 -workers 32
`)
}
