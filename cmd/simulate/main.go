package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/simulate"
)

// Default configuration constants.
const (
	defaultUsers       = 100
	defaultSteps       = 5
	defaultStepMeters  = 60
	defaultCenter      = "41.0082,28.9784"
	defaultRadiusKm    = 5
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultSettle      = 30 * time.Second
	defaultPoll        = 200 * time.Millisecond
	defaultTolerance   = 101
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of simulated users")
		steps      = flag.Int("steps", defaultSteps, "Readings per user")
		stepMeters = flag.Float64("step", defaultStepMeters, "Meters walked between readings")
		center     = flag.String("center", defaultCenter, "Start area as lat,lng")
		radius     = flag.Float64("radius", defaultRadiusKm, "Start radius around center in km")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for each cache to become valid")
		tolerance  = flag.Float64("tolerance", defaultTolerance, "Allowed estimate drift in meters")
		outputFile = flag.String("output", "", "Write generated walks to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	origin, err := geo.ParseLatLng(*center)
	if err != nil {
		os.Stderr.WriteString("Invalid -center: " + err.Error() + "\n")
		closeLog()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)

	config := &simulate.Config{
		BaseURL:         *baseURL,
		Users:           *users,
		Steps:           *steps,
		StepMeters:      *stepMeters,
		Center:          origin,
		RadiusKm:        *radius,
		Workers:         *workers,
		Timeout:         *timeout,
		SettleTimeout:   *settle,
		PollInterval:    defaultPoll,
		ToleranceMeters: *tolerance,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	_, err = simulate.Run(ctx, config)
	cancel()
	closeLog()
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
