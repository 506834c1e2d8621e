package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchside/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

type submitResult int

const (
	resultAccepted submitResult = iota
	resultBackpressure
	resultFailed
)

// submitWalks posts every walk's readings. One worker owns a walk at a time so
// each user's readings arrive in order.
func submitWalks(ctx context.Context, config *Config, walks []Walk, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting readings", logger.Int("walks", len(walks)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/location"

	var submitted, accepted, backpressured, failed atomic.Int64

	walkChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range walkChan {
				for _, reading := range walks[index].Readings {
					if ctx.Err() != nil {
						return
					}
					submitted.Add(1)
					switch submitReading(ctx, client, url, reading) {
					case resultAccepted:
						accepted.Add(1)
					case resultBackpressure:
						backpressured.Add(1)
					case resultFailed:
						failed.Add(1)
						if config.Verbose {
							log.Warn(ctx, "reading failed", logger.String("user_id", reading.UserID))
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(walkChan)
		for i := range walks {
			select {
			case <-ctx.Done():
				return
			case walkChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.ReadingsSubmitted = int(submitted.Load())
	stats.ReadingsAccepted = int(accepted.Load())
	stats.ReadingsBackpressured = int(backpressured.Load())
	stats.ReadingsFailed = int(failed.Load())

	log.Info(ctx, "reading submission completed",
		logger.Int("accepted", stats.ReadingsAccepted),
		logger.Int("backpressured", stats.ReadingsBackpressured),
		logger.Int("failed", stats.ReadingsFailed))

	return ctx.Err()
}

// submitReading posts one reading, backing off while the service reports
// backpressure.
func submitReading(ctx context.Context, client *HTTPClient, url string, reading Reading) submitResult {
	for attempt := 0; ; attempt++ {
		resp, err := client.Post(ctx, url, reading)
		if err != nil {
			return resultFailed
		}
		_, _ = readResponseBody(resp)

		switch resp.StatusCode {
		case StatusAccepted:
			return resultAccepted
		case StatusTooManyRequests:
			if attempt >= maxBackpressureRetries {
				return resultBackpressure
			}
			select {
			case <-ctx.Done():
				return resultBackpressure
			case <-time.After(backpressureBackoff):
			}
		default:
			return resultFailed
		}
	}
}
