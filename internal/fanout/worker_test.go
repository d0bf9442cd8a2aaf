package fanout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/fanout"
	"github.com/notifyhub/broadcast/internal/mailer"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/ratelimiter"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/suppression"
)

type workerFixture struct {
	notifications *repository.MockNotificationRepository
	deliveries    *repository.MockDeliveryRepository
	suppressions  *suppression.MockStore
	q             *queue.DispatchQueue
	mail          *stubMailer
	worker        *fanout.Worker
}

func newWorkerFixture(t *testing.T, maxAttempts int) *workerFixture {
	t.Helper()
	f := &workerFixture{
		notifications: repository.NewMockNotificationRepository(),
		deliveries:    repository.NewMockDeliveryRepository(),
		suppressions:  suppression.NewMockStore(),
		q:             queue.New(),
		mail:          &stubMailer{},
	}
	f.worker = fanout.NewWorker(
		0, f.q, f.notifications, f.deliveries, f.mail, f.suppressions,
		ratelimiter.New(1000), maxAttempts, zap.NewNop(), nil, nil, nil,
	)

	err := f.notifications.Create(context.Background(), &domain.Notification{
		ID:       "n1",
		Title:    "t",
		Subject:  "hello",
		BodyText: "body",
		Status:   domain.NotificationProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// claimDelivery inserts one row and claims it the way the runner does.
func (f *workerFixture) claimDelivery(t *testing.T, userID, email string) string {
	t.Helper()
	ctx := context.Background()
	d := domain.NewDelivery("n1", userID, email, "batch-1", time.Now().UTC())
	if _, err := f.deliveries.BulkInsertIgnore(ctx, []*domain.Delivery{d}); err != nil {
		t.Fatal(err)
	}
	if err := f.deliveries.BulkUpdateStatus(ctx, []string{d.ID}, domain.DeliverySending); err != nil {
		t.Fatal(err)
	}
	return d.ID
}

// runUntil runs the worker until the delivery reaches want or the deadline hits.
func (f *workerFixture) runUntil(t *testing.T, deliveryID string, want domain.DeliveryStatus) *domain.Delivery {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		d, err := f.deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			t.Fatal(err)
		}
		if d.Status == want {
			return d
		}
		time.Sleep(5 * time.Millisecond)
	}
	d, _ := f.deliveries.GetByID(context.Background(), deliveryID)
	t.Fatalf("delivery never reached %s, stuck at %s", want, d.Status)
	return nil
}

func TestWorker_SuccessfulSend(t *testing.T) {
	f := newWorkerFixture(t, 3)
	id := f.claimDelivery(t, "u1", "u1@example.com")

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliverySent)

	if d.AttemptCount != 1 {
		t.Fatalf("expected exactly one attempt, got %d", d.AttemptCount)
	}
	if d.SESMessageID == nil || *d.SESMessageID == "" {
		t.Fatal("expected provider message id recorded")
	}
	if d.SentAt == nil {
		t.Fatal("expected sent_at recorded")
	}
}

func TestWorker_SuppressedRecipientIsSkipped(t *testing.T) {
	f := newWorkerFixture(t, 3)
	id := f.claimDelivery(t, "u1", "blocked@example.com")
	_ = f.suppressions.Add(context.Background(), "blocked@example.com", suppression.ReasonComplaint)

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliverySuppressed)

	if f.mail.Calls() != 0 {
		t.Fatal("suppressed recipient must never reach the provider")
	}
	if d.AttemptCount != 0 {
		t.Fatalf("a policy skip is not an attempt, got %d", d.AttemptCount)
	}
	if d.LastError == nil || *d.LastError != string(suppression.ReasonComplaint) {
		t.Fatal("expected the suppression reason on the row")
	}
}

func TestWorker_UnsubscribedRecipient(t *testing.T) {
	f := newWorkerFixture(t, 3)
	id := f.claimDelivery(t, "u1", "gone@example.com")
	_ = f.suppressions.Add(context.Background(), "gone@example.com", suppression.ReasonUnsubscribe)

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	f.runUntil(t, id, domain.DeliveryUnsubscribed)

	if f.mail.Calls() != 0 {
		t.Fatal("unsubscribed recipient must never reach the provider")
	}
}

// A suppression store outage must not strand the claimed row at SENDING,
// where no scan can see it; the row goes back on the retry path instead.
func TestWorker_SuppressionOutageDefersRetry(t *testing.T) {
	f := newWorkerFixture(t, 3)
	f.suppressions.CheckErr = errors.New("suppression store unavailable")
	id := f.claimDelivery(t, "u1", "u1@example.com")

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliveryRetrying)

	if f.mail.Calls() != 0 {
		t.Fatal("no send may happen without a policy verdict")
	}
	if d.AttemptCount != 0 {
		t.Fatalf("a deferred row is not an attempt, got %d", d.AttemptCount)
	}
	if d.LastError == nil {
		t.Fatal("expected the deferral cause on the row")
	}

	// The retry sweep must be able to pick the row back up.
	ctx := context.Background()
	due, err := f.deliveries.FindRetrying(ctx, "n1", time.Now().UTC().Add(time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("deferred row must be visible to the retry scan, got %v", due)
	}
}

func TestWorker_PermanentFailure(t *testing.T) {
	f := newWorkerFixture(t, 3)
	f.mail.Err = &mailer.PermanentError{Reason: "address does not exist"}
	id := f.claimDelivery(t, "u1", "u1@example.com")

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliveryFailed)

	if d.AttemptCount != 1 {
		t.Fatalf("a permanent rejection must not be retried, got %d attempts", d.AttemptCount)
	}
	if d.LastError == nil {
		t.Fatal("expected the rejection reason on the row")
	}
}

func TestWorker_TransientFailureGoesToRetrying(t *testing.T) {
	f := newWorkerFixture(t, 3)
	f.mail.Err = errors.New("provider status 503")
	id := f.claimDelivery(t, "u1", "u1@example.com")

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliveryRetrying)

	if d.AttemptCount != 1 {
		t.Fatalf("expected one attempt, got %d", d.AttemptCount)
	}
}

func TestWorker_TransientFailureExhaustsAttempts(t *testing.T) {
	f := newWorkerFixture(t, 1)
	f.mail.Err = errors.New("provider status 503")
	id := f.claimDelivery(t, "u1", "u1@example.com")

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})
	d := f.runUntil(t, id, domain.DeliveryFailed)

	if d.AttemptCount != 1 {
		t.Fatalf("expected the budgeted single attempt, got %d", d.AttemptCount)
	}
}

func TestWorker_TerminalRowIsLeftAlone(t *testing.T) {
	f := newWorkerFixture(t, 3)
	id := f.claimDelivery(t, "u1", "u1@example.com")
	ctx := context.Background()
	now := time.Now().UTC()
	_ = f.deliveries.MarkSending(ctx, id)
	_ = f.deliveries.UpdateDeliveryResult(ctx, id, domain.DeliveryResult{
		Status: domain.DeliverySent,
		SentAt: &now,
	})

	// A stale queue item for an already-terminal row must be a no-op.
	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1", Retry: true})

	runCtx, cancel := context.WithCancel(ctx)
	go f.worker.Run(runCtx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	if f.mail.Calls() != 0 {
		t.Fatal("terminal row must not be re-sent")
	}
	d, _ := f.deliveries.GetByID(ctx, id)
	if d.Status != domain.DeliverySent || d.AttemptCount != 1 {
		t.Fatalf("terminal row was modified: %s attempts=%d", d.Status, d.AttemptCount)
	}
}

func TestWorker_SkipsWhenNotificationCancelled(t *testing.T) {
	f := newWorkerFixture(t, 3)
	id := f.claimDelivery(t, "u1", "u1@example.com")
	ctx := context.Background()
	_ = f.notifications.UpdateStatus(ctx, "n1", domain.NotificationCancelled)

	_ = f.q.Enqueue(queue.Item{DeliveryID: id, NotificationID: "n1"})

	runCtx, cancel := context.WithCancel(ctx)
	go f.worker.Run(runCtx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	if f.mail.Calls() != 0 {
		t.Fatal("no send may happen for a cancelled broadcast")
	}
	d, _ := f.deliveries.GetByID(ctx, id)
	if d.Status != domain.DeliverySending {
		t.Fatalf("row must be left untouched, got %s", d.Status)
	}
}
