// Package bus carries events from feed goroutines to the coordinator thread.
package bus

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

var (
	ErrQueueFull   = errors.New("bus: event queue full")
	ErrQueueClosed = errors.New("bus: event queue closed")
)

// Queue is a bounded, non-blocking event queue with many producers and one
// consumer. It implements core.Source for live sessions.
type Queue struct {
	ch      chan schema.Event
	mu      sync.RWMutex
	closed  bool
	metrics *obs.Metrics
	clock   func() schema.Timeval
}

// NewQueue allocates a queue with the given capacity. metrics may be nil.
func NewQueue(capacity int, metrics *obs.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:      make(chan schema.Event, capacity),
		metrics: metrics,
		clock:   schema.Now,
	}
}

// WithClock replaces the wall clock used to wait for timers.
func (q *Queue) WithClock(clock func() schema.Timeval) *Queue {
	if clock != nil {
		q.clock = clock
	}
	return q
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(ev schema.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.metrics.IncQueueClosed()
		return ErrQueueClosed
	}
	select {
	case q.ch <- ev:
		return nil
	default:
		q.metrics.IncQueueDrop()
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events. Queued events are still
// delivered; Next returns io.EOF once they are gone.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Next implements core.Source. When until passes before an event arrives it
// returns a heartbeat stamped at until.
func (q *Queue) Next(ctx context.Context, until schema.Timeval) (schema.Event, bool, error) {
	select {
	case ev, ok := <-q.ch:
		return q.deliver(ev, ok)
	default:
	}

	var timeout <-chan time.Time
	if !until.IsNone() {
		wait := until.Sub(q.clock())
		if wait <= 0 {
			return heartbeat(until), true, nil
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return schema.Event{}, false, ctx.Err()
	case ev, ok := <-q.ch:
		return q.deliver(ev, ok)
	case <-timeout:
		return heartbeat(until), len(q.ch) == 0, nil
	}
}

func (q *Queue) deliver(ev schema.Event, ok bool) (schema.Event, bool, error) {
	if !ok {
		return schema.Event{}, true, io.EOF
	}
	return ev, len(q.ch) == 0, nil
}

func heartbeat(at schema.Timeval) schema.Event {
	return schema.Event{
		Header:  schema.NewHeader(schema.FamilyInternal, schema.KindHeartbeat, 0, 0, at, at),
		Payload: schema.Heartbeat{},
	}
}
