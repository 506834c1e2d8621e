// Package rabbitmq feeds location updates from an AMQP queue into the
// refresh pipeline.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/okian/pitchside/internal/adapters/mq/dedupe"
	"github.com/okian/pitchside/internal/adapters/mq/queue"
	"github.com/okian/pitchside/internal/domain/geo"
	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

const (
	defaultPrefetch  = 16
	heartbeat        = 10 * time.Second
	dialTimeout      = 30 * time.Second
	handlerTimeout   = 30 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	metricsOrigin    = "amqp"
	metricsComponent = "rabbitmq"
)

// ErrMalformedMessage is returned for bodies that cannot become an update.
var ErrMalformedMessage = errors.New("malformed location message")

// SubmitFunc hands a decoded update to the pipeline.
type SubmitFunc func(ctx context.Context, u model.LocationUpdate) error

// Consumer reads location messages with manual acks.
type Consumer struct {
	url      string
	queue    string
	tag      string
	prefetch int
	submit   SubmitFunc
	seen     dedupe.Deduper
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithPrefetch sets the channel QoS prefetch count.
func WithPrefetch(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithClock stamps messages that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDeduper sets the tracker used to drop redelivered message ids.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *Consumer) {
		if d != nil {
			c.seen = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsumer creates a consumer for queueName. The consumer tag is unique
// per process.
func NewConsumer(url, queueName string, submit SubmitFunc, opts ...Option) *Consumer {
	c := &Consumer{
		url:      url,
		queue:    queueName,
		tag:      "pitchside-" + uuid.NewString(),
		prefetch: defaultPrefetch,
		submit:   submit,
		seen:     dedupe.NewInMemory(),
		now:      time.Now,
		logger:   logger.Default().Named("rabbitmq"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is canceled, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = initialBackoff
			continue
		}
		metrics.RecordErrorByComponent(metricsComponent, "consume")
		c.logger.Error(ctx, "consumer stopped, reconnecting",
			logger.Error(err),
			logger.Duration("backoff", backoff),
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq set QoS (prefetch=%d): %w", c.prefetch, err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", c.queue, err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		c.tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume(%s): %w", c.queue, err)
	}
	c.logger.Info(ctx, "consuming location updates",
		logger.String("queue", c.queue),
		logger.String("consumer_tag", c.tag),
		logger.Int("prefetch", c.prefetch),
	)

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(c.tag, false)
			return nil
		case cerr := <-closed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq channel closed while consuming %s: %w", c.queue, cerr)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks on success. Malformed and rejected messages are dropped;
// a full queue sends the message back to the broker. Messages whose id was
// already handled are acked without being submitted again.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) { //nolint:gocritic // hugeParam: amqp hands deliveries by value
	if d.MessageId != "" && c.seen.SeenAndRecord(ctx, d.MessageId) {
		metrics.RecordLocationSample(metricsOrigin, "duplicate")
		_ = d.Ack(false)
		return
	}

	u, err := c.decode(d.Body)
	if err != nil {
		metrics.RecordLocationSample(metricsOrigin, "malformed")
		c.logger.Warn(ctx, "dropping malformed message", logger.Error(err))
		_ = d.Nack(false, false)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	err = c.submit(hctx, u)
	cancel()

	switch {
	case err == nil:
		metrics.RecordLocationSample(metricsOrigin, "accepted")
		_ = d.Ack(false)
	case errors.Is(err, queue.ErrQueueFull):
		metrics.RecordLocationSample(metricsOrigin, "backpressure")
		if d.MessageId != "" {
			c.seen.Unrecord(ctx, d.MessageId)
		}
		_ = d.Nack(false, true)
	default:
		metrics.RecordLocationSample(metricsOrigin, "rejected")
		c.logger.Warn(ctx, "dropping rejected update",
			logger.String("user_id", u.UserID),
			logger.Error(err),
		)
		_ = d.Nack(false, false)
	}
}

type message struct {
	UserID   string `json:"user_id"`
	Location *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
}

func (c *Consumer) decode(body []byte) (model.LocationUpdate, error) {
	var m message
	if err := json.Unmarshal(body, &m); err != nil {
		return model.LocationUpdate{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(m.UserID) == "" {
		return model.LocationUpdate{}, fmt.Errorf("%w: missing user_id", ErrMalformedMessage)
	}
	if m.Location == nil || m.Location.Lat == nil || m.Location.Lng == nil {
		return model.LocationUpdate{}, fmt.Errorf("%w: missing location", ErrMalformedMessage)
	}

	now := c.now()
	captured := m.Timestamp
	if captured.IsZero() {
		captured = now
	}
	sample, err := geo.NewLocationSample(*m.Location.Lat, *m.Location.Lng, captured, m.Address)
	if err != nil {
		return model.LocationUpdate{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return model.LocationUpdate{UserID: m.UserID, Sample: sample, ReceivedAt: now}, nil
}
