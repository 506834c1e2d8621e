// Package dedupe tracks recently seen message ids so redelivered messages are
// processed at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen message ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a message handed back to the broker is
	// processed when it is redelivered.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// InMemory keeps the most recent ids. In bounded mode the oldest id is
// evicted once maxSize is reached.
type InMemory struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is newest
	maxSize int        // 0 or negative = unbounded
}

var _ Deduper = (*InMemory)(nil)

// NewInMemory creates an in-memory deduper.
func NewInMemory(opts ...Option) *InMemory {
	d := &InMemory{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *InMemory) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[id] = d.order.PushFront(id)
	return false
}

// Unrecord implements Deduper.
func (d *InMemory) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

// Size returns the number of ids currently remembered.
func (d *InMemory) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
