package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchside/pkg/logger"
)

// retrieveNearby polls GET /events/nearby for every walk until its cache is
// valid or SettleTimeout passes. Responses are returned in walk order; a
// walk whose requests all failed gets a zero NearbyResponse.
func retrieveNearby(ctx context.Context, config *Config, walks []Walk, stats *Stats) ([]NearbyResponse, error) {
	log := logger.Get()
	log.Info(ctx, "retrieving nearby events", logger.Int("users", len(walks)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	responses := make([]NearbyResponse, len(walks))
	var retrieved, valid, failed atomic.Int64

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				userID := walks[index].UserID
				resp, err := pollNearby(ctx, client, config, userID)
				if err != nil {
					failed.Add(1)
					if config.Verbose {
						log.Warn(ctx, "failed to get nearby events", logger.String("user_id", userID), logger.Error(err))
					}
					continue
				}
				responses[index] = resp
				retrieved.Add(1)
				if resp.CacheValid {
					valid.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range walks {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.NearbyRetrieved = int(retrieved.Load())
	stats.NearbyValid = int(valid.Load())

	log.Info(ctx, "nearby retrieval completed",
		logger.Int("retrieved", stats.NearbyRetrieved),
		logger.Int("valid", stats.NearbyValid),
		logger.Int("failed", int(failed.Load())))

	return responses, ctx.Err()
}

// pollNearby returns the first response with a valid cache, or the last
// response seen once SettleTimeout passes.
func pollNearby(ctx context.Context, client *HTTPClient, config *Config, userID string) (NearbyResponse, error) {
	deadline := time.Now().Add(config.SettleTimeout)
	endpoint := fmt.Sprintf("%s/events/nearby?user_id=%s", config.BaseURL, url.QueryEscape(userID))

	var last NearbyResponse
	var lastErr error
	for {
		resp, err := fetchNearby(ctx, client, endpoint)
		if err == nil {
			last, lastErr = resp, nil
			if resp.CacheValid {
				return resp, nil
			}
		} else {
			lastErr = err
		}

		if time.Now().After(deadline) {
			return last, lastErr
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(config.PollInterval):
		}
	}
}

func fetchNearby(ctx context.Context, client *HTTPClient, endpoint string) (NearbyResponse, error) {
	resp, err := client.Get(ctx, endpoint)
	if err != nil {
		return NearbyResponse{}, fmt.Errorf("request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return NearbyResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return NearbyResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out NearbyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return NearbyResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}
