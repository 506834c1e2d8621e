// Package queue holds bounded in-memory queues of location updates.
//
// Updates are sharded by user id so that every update for one user is
// drained, in order, by the same single writer.
package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/okian/pitchside/internal/domain/model"
	"github.com/okian/pitchside/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Update is the payload type flowing through the queue.
type Update = model.LocationUpdate

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an update without blocking. It returns ErrQueueFull or
	// ErrQueueClosed when the update was not accepted.
	Enqueue(ctx context.Context, u Update) error

	// Dequeue returns a channel that receives updates in FIFO order.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Update

	// Len returns the current number of queued updates.
	Len(ctx context.Context) int

	// Close stops accepting updates.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	updates  chan Update
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		name:     "queue",
	}
	for _, opt := range opts {
		opt(q)
	}
	q.updates = make(chan Update, q.capacity)
	return q
}

// Enqueue adds an update to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, u Update) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.name, "closed")
		return ErrQueueClosed
	}

	select {
	case q.updates <- u:
		metrics.RecordQueueEnqueue()
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.name, "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.name, "queue_full")
		return ErrQueueFull
	}
}

// Dequeue returns a channel that will receive updates as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Update {
	out := make(chan Update)
	go func() {
		defer close(out)
		for u := range q.updates {
			select {
			case out <- u:
				metrics.RecordQueueDequeue()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued updates.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.updates)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting updates. Already queued updates are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.updates)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Sharded routes updates to one of several queues by user id.
type Sharded struct {
	shards []*InMemoryQueue
}

// NewSharded creates n queues of the given per-shard capacity.
func NewSharded(n, capacity int) *Sharded {
	if n < 1 {
		n = 1
	}
	s := &Sharded{shards: make([]*InMemoryQueue, n)}
	for i := range s.shards {
		s.shards[i] = NewInMemoryQueue(WithCapacity(capacity), WithName("queue"))
	}
	metrics.UpdateQueueCapacity(n * s.shards[0].Capacity())
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return s
}

// ShardFor returns the shard index owning userID.
func (s *Sharded) ShardFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(s.shards))) //nolint:gosec // shard count is small and positive
}

// Enqueue routes u to the shard owning u.UserID.
func (s *Sharded) Enqueue(ctx context.Context, u Update) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	err := s.shards[s.ShardFor(u.UserID)].Enqueue(ctx, u)
	s.Len(ctx)
	return err
}

// Shards returns the per-shard queues.
func (s *Sharded) Shards() []*InMemoryQueue {
	return s.shards
}

// Len returns the total number of queued updates and refreshes the gauges.
func (s *Sharded) Len(ctx context.Context) int {
	total, capacity := 0, 0
	for _, q := range s.shards {
		total += q.Len(ctx)
		capacity += q.Capacity()
	}
	metrics.UpdateQueueSize(total)
	if capacity > 0 {
		metrics.UpdateQueueUtilization(float64(total) / float64(capacity))
	}
	return total
}

// Close closes every shard.
func (s *Sharded) Close() error {
	for _, q := range s.shards {
		_ = q.Close()
	}
	return nil
}
