package live

import (
	"context"
	"errors"
	"sync"

	"main/internal/market"
)

var ErrQueueClosed = errors.New("event queue closed")

// Queue is the bounded event queue between the exchange reader and the
// engine. Publish blocks when the queue is full: the reader stalls rather
// than dropping events, and the transport's own buffering absorbs the burst.
type Queue struct {
	ch   chan market.Event
	done chan struct{}
	once sync.Once
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan market.Event, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues an event, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, e market.Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next event, blocking while the queue is empty. Buffered
// events drain even after Close.
func (q *Queue) Pop(ctx context.Context) (market.Event, error) {
	select {
	case e := <-q.ch:
		return e, nil
	default:
	}
	select {
	case e := <-q.ch:
		return e, nil
	case <-q.done:
		// A publish may have landed between the checks.
		select {
		case e := <-q.ch:
			return e, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the current backlog.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
