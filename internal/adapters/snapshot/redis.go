// Package snapshot persists proximity cache entries in Redis so a session can
// resume its last result set after a restart.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/internal/domain/proximity"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

const (
	defaultKeyPrefix   = "pitchside:proximity:"
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
	defaultPoolSize    = 10
	defaultMinIdle     = 2
)

// ErrCorruptSnapshot is returned when a stored payload cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// RedisStore implements proximity.SnapshotStore.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	logger logger.Logger
}

var _ proximity.SnapshotStore = (*RedisStore)(nil)

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(p string) Option {
	return func(s *RedisStore) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultIOTimeout,
		WriteTimeout: defaultIOTimeout,
		PoolSize:     defaultPoolSize,
		MinIdleConns: defaultMinIdle,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client redis.Cmdable, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		logger: logger.Default().Named("snapshot"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes e under key with the given expiry.
func (s *RedisStore) Save(ctx context.Context, key string, e proximity.Entry, ttl time.Duration) error {
	payload, err := encode(e)
	if err != nil {
		metrics.RecordSnapshot("save", "error")
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		metrics.RecordSnapshot("save", "error")
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	metrics.RecordSnapshot("save", "ok")
	return nil
}

// Load reads the snapshot under key. A missing key is not an error.
func (s *RedisStore) Load(ctx context.Context, key string) (proximity.Entry, bool, error) {
	payload, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordSnapshot("load", "miss")
		return proximity.Entry{}, false, nil
	}
	if err != nil {
		metrics.RecordSnapshot("load", "error")
		return proximity.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	e, err := decode(payload)
	if err != nil {
		metrics.RecordSnapshot("load", "corrupt")
		s.logger.Warn(ctx, "discarding snapshot", logger.String("key", key), logger.Error(err))
		return proximity.Entry{}, false, err
	}
	metrics.RecordSnapshot("load", "hit")
	return e, true, nil
}

// Delete removes the snapshot under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		metrics.RecordSnapshot("delete", "error")
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	metrics.RecordSnapshot("delete", "ok")
	return nil
}

type record struct {
	Lat        float64                           `json:"lat"`
	Lng        float64                           `json:"lng"`
	ComputedAt time.Time                         `json:"computed_at"`
	Results    map[string]model.DistanceEstimate `json:"results"`
}

func encode(e proximity.Entry) ([]byte, error) { //nolint:gocritic // hugeParam: entries are values
	b, err := json.Marshal(record{
		Lat:        e.SampleLocation.Latitude(),
		Lng:        e.SampleLocation.Longitude(),
		ComputedAt: e.ComputedAt.UTC(),
		Results:    e.Results,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// decode never restores a generation; the cache assigns its own.
func decode(payload []byte) (proximity.Entry, error) {
	var r record
	if err := json.Unmarshal(payload, &r); err != nil {
		return proximity.Entry{}, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	coord, err := geo.NewCoordinate(r.Lat, r.Lng)
	if err != nil {
		return proximity.Entry{}, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if r.ComputedAt.IsZero() {
		return proximity.Entry{}, fmt.Errorf("%w: missing computed_at", ErrCorruptSnapshot)
	}
	results := r.Results
	if results == nil {
		results = map[string]model.DistanceEstimate{}
	}
	return proximity.Entry{SampleLocation: coord, ComputedAt: r.ComputedAt, Results: results}, nil
}
