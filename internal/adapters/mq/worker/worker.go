// Package worker drains location update queues and drives session refreshes.
// Each queue shard has exactly one worker, so updates for one user are
// handled by a single writer in arrival order.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/pitchside/internal/adapters/mq/queue"
	"github.com/okian/pitchside/pkg/logger"
	"github.com/okian/pitchside/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Handler processes one location update.
type Handler interface {
	HandleUpdate(ctx context.Context, u queue.Update) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u queue.Update) error

// HandleUpdate implements Handler.
func (f HandlerFunc) HandleUpdate(ctx context.Context, u queue.Update) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	return f(ctx, u)
}

// Queue defines how workers receive updates.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Update
}

// Worker processes updates from one queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the loop to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for a single queue shard.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Default().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	updates := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := w.process(ctx, u); err != nil {
				w.logger.Error(ctx, "error processing update", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when the loop has exited.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, u queue.Update) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	if err := w.handler.HandleUpdate(ctx, u); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handler_error")
		return fmt.Errorf("update for user %s: %w", u.UserID, err)
	}
	return nil
}

// Pool runs one worker per queue shard.
type Pool struct {
	workers []*InMemoryWorker
	closer  interface{ Close() error }
	logger  logger.Logger
}

// NewPool creates one worker for each shard of q.
func NewPool(q *queue.Sharded, h Handler) *Pool {
	shards := q.Shards()
	p := &Pool{
		workers: make([]*InMemoryWorker, len(shards)),
		closer:  q,
		logger:  logger.Default().Named("worker-pool"),
	}
	for i, shard := range shards {
		p.workers[i] = NewInMemoryWorker(shard, h, WithName("shard-"+strconv.Itoa(i)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the queues, lets workers drain them and waits for all of them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.closer.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
