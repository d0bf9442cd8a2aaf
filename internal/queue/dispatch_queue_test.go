package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/notifyhub/broadcast/internal/queue"
)

func item(id string, retry bool) queue.Item {
	return queue.Item{DeliveryID: id, NotificationID: "n1", Retry: retry}
}

func TestDispatchQueue_BasicEnqueueDequeue(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	if err := q.Enqueue(item("1", false)); err != nil {
		t.Fatal(err)
	}

	got, ok := q.Dequeue(ctx)
	if !ok {
		t.Fatal("expected item, got nothing")
	}
	if got.DeliveryID != "1" {
		t.Fatalf("expected id=1, got %s", got.DeliveryID)
	}
}

// TestDispatchQueue_SendsBeforeRetries verifies that a first attempt inserted
// after a retry is still served first.
func TestDispatchQueue_SendsBeforeRetries(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	_ = q.Enqueue(item("retry", true))
	_ = q.Enqueue(item("fresh", false))

	first, _ := q.Dequeue(ctx)
	if first.DeliveryID != "fresh" {
		t.Fatalf("expected the first attempt to be dequeued first, got %q", first.DeliveryID)
	}
}

// TestDispatchQueue_ContextCancellation verifies Dequeue returns (_, false)
// when the context is cancelled while blocking.
func TestDispatchQueue_ContextCancellation(t *testing.T) {
	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

// TestDispatchQueue_ConcurrentEnqueueDequeue verifies there are no races
// when multiple goroutines enqueue and dequeue simultaneously.
func TestDispatchQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	q := queue.New()

	const producers = 5
	const itemsPerProducer = 100
	const total = producers * itemsPerProducer

	received := make(chan struct{}, total)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		for {
			_, ok := q.Dequeue(ctx)
			if !ok {
				return
			}
			received <- struct{}{}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				_ = q.Enqueue(item("id", false))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatalf("timeout: only received %d/%d items", i, total)
		}
	}
	cancel()
	consumerDone.Wait()
}

func TestDispatchQueue_Depths(t *testing.T) {
	q := queue.New()

	_ = q.Enqueue(item("s1", false))
	_ = q.Enqueue(item("s2", false))
	_ = q.Enqueue(item("r1", true))

	sends, retries := q.Depths()
	if sends != 2 || retries != 1 {
		t.Fatalf("unexpected depths: sends=%d retries=%d", sends, retries)
	}
}
