package queue

import (
	"context"

	"github.com/notifyhub/broadcast/internal/domain"
)

// DispatchQueue feeds delivery attempts to the send workers over two buffered
// channels: first attempts and retries.
//
// Buffer sizes reflect expected traffic:
//
//	sends:   5 000  — a fan-out run enqueues a whole batch at once
//	retries: 2 000  — refilled slowly by the retry sweeper
//
// Workers dequeue via the double-select pattern: first attempts are always
// served before retries, so a burst of transient provider failures cannot
// starve fresh sends, while sends and retries still compete fairly once the
// send channel drains.
type DispatchQueue struct {
	sends   chan Item
	retries chan Item
}

func New() *DispatchQueue {
	return &DispatchQueue{
		sends:   make(chan Item, 5000),
		retries: make(chan Item, 2000),
	}
}

// Enqueue places an item on the appropriate channel.
// It is non-blocking: if the target channel is full, ErrQueueFull is returned
// immediately rather than blocking the caller.
func (q *DispatchQueue) Enqueue(item Item) error {
	ch := q.sends
	if item.Retry {
		ch = q.retries
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
//  1. A non-blocking select checks the send channel first. If a first
//     attempt is waiting it is returned immediately regardless of retries.
//  2. Only when sends is empty does the goroutine enter a fair blocking
//     select across both channels plus the done signal, so workers sleep
//     instead of spinning.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *DispatchQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.sends:
		return item, true
	default:
	}

	select {
	case item := <-q.sends:
		return item, true
	case item := <-q.retries:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each tier.
// Used by the metrics handler for the queue-depth snapshot.
func (q *DispatchQueue) Depths() (sends, retries int) {
	return len(q.sends), len(q.retries)
}
