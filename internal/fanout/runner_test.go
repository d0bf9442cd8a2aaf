package fanout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/audience"
	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/fanout"
	"github.com/notifyhub/broadcast/internal/mailer"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/ratelimiter"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/suppression"
)

// stubMailer records sends and returns a fresh message id per call.
// Set Err to force every attempt down the failure path.
type stubMailer struct {
	mu    sync.Mutex
	calls int

	Err error
}

func (s *stubMailer) Send(_ context.Context, _ mailer.OutboundEmail) (mailer.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return mailer.SendResult{}, s.Err
	}
	return mailer.SendResult{MessageID: fmt.Sprintf("msg-%d", s.calls)}, nil
}

func (s *stubMailer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	notifications *repository.MockNotificationRepository
	deliveries    *repository.MockDeliveryRepository
	directory     *audience.MockDirectory
	q             *queue.DispatchQueue
	runner        *fanout.Runner
}

func newFixture(recipients ...audience.Recipient) *fixture {
	notifications := repository.NewMockNotificationRepository()
	deliveries := repository.NewMockDeliveryRepository()
	directory := &audience.MockDirectory{Recipients: recipients}
	q := queue.New()
	runner := fanout.NewRunner(
		notifications, deliveries, notifications, audience.NewResolver(directory), q,
		10*time.Millisecond, 10*time.Millisecond, zap.NewNop(),
	)
	return &fixture{
		notifications: notifications,
		deliveries:    deliveries,
		directory:     directory,
		q:             q,
		runner:        runner,
	}
}

func (f *fixture) addNotification(t *testing.T, id string, status domain.NotificationStatus) {
	t.Helper()
	err := f.notifications.Create(context.Background(), &domain.Notification{
		ID:           id,
		Title:        "t",
		Subject:      "s",
		BodyText:     "b",
		SendAt:       time.Now().UTC(),
		AudienceType: domain.AudienceAll,
		Status:       status,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) startWorkers(ctx context.Context, mail mailer.Mailer, n int) *fanout.Pool {
	pool := fanout.NewPool(
		n, f.q, f.notifications, f.deliveries, mail, suppression.NewMockStore(),
		ratelimiter.New(1000), 3, zap.NewNop(), fanout.MetricHooks{},
	)
	pool.Start(ctx)
	return pool
}

func TestRunner_ProcessCompletesBroadcast(t *testing.T) {
	f := newFixture(
		audience.Recipient{UserID: "u1", Email: "u1@example.com"},
		audience.Recipient{UserID: "u2", Email: "u2@example.com"},
		audience.Recipient{UserID: "u3", Email: "u3@example.com"},
	)
	f.addNotification(t, "n1", domain.NotificationScheduled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mail := &stubMailer{}
	pool := f.startWorkers(ctx, mail, 2)
	defer pool.Wait()

	if err := f.runner.Process(ctx, "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, _ := f.notifications.GetByID(ctx, "n1")
	if n.Status != domain.NotificationCompleted {
		t.Fatalf("expected completed, got %s", n.Status)
	}

	histogram, _ := f.deliveries.CountByStatus(ctx, "n1")
	if histogram[domain.DeliverySent] != 3 {
		t.Fatalf("expected 3 sent deliveries, got %v", histogram)
	}
	if mail.Calls() != 3 {
		t.Fatalf("expected 3 sends, got %d", mail.Calls())
	}
	cancel()
}

// Re-firing the trigger must insert rows only for recipients that have none,
// and never touch the status or batch of existing rows.
func TestRunner_RepeatedFanoutDoesNotDuplicate(t *testing.T) {
	f := newFixture(
		audience.Recipient{UserID: "u1", Email: "u1@example.com"},
		audience.Recipient{UserID: "u2", Email: "u2@example.com"},
		audience.Recipient{UserID: "u3", Email: "u3@example.com"},
	)
	f.addNotification(t, "n1", domain.NotificationProcessing)
	ctx := context.Background()

	// u1 already has a terminal row from an earlier run.
	existing := domain.NewDelivery("n1", "u1", "u1@example.com", "batch-old", time.Now().UTC())
	if _, err := f.deliveries.BulkInsertIgnore(ctx, []*domain.Delivery{existing}); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	_ = f.deliveries.UpdateDeliveryResult(ctx, existing.ID, domain.DeliveryResult{
		Status: domain.DeliverySent,
		SentAt: &now,
	})

	// No workers are draining the queue, so the run cannot complete; a short
	// deadline stops the drive loop once the interesting part is over.
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := f.runner.Process(runCtx, "n1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	old, err := f.deliveries.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != domain.DeliverySent || old.BatchID != "batch-old" {
		t.Fatalf("existing row was dirtied: status=%s batch=%s", old.Status, old.BatchID)
	}

	histogram, _ := f.deliveries.CountByStatus(ctx, "n1")
	total := 0
	for _, c := range histogram {
		total += c
	}
	if total != 3 {
		t.Fatalf("expected 3 rows after re-fire, got %d (%v)", total, histogram)
	}
	if histogram[domain.DeliverySending] != 2 {
		t.Fatalf("expected the 2 new rows claimed for sending, got %v", histogram)
	}
}

// A crash between insert and claim leaves PENDING rows behind under the old
// batch id. A re-fired run must adopt and send them, otherwise the broadcast
// can never complete.
func TestRunner_AdoptsOrphanedPendingRows(t *testing.T) {
	f := newFixture(
		audience.Recipient{UserID: "u1", Email: "u1@example.com"},
		audience.Recipient{UserID: "u2", Email: "u2@example.com"},
		audience.Recipient{UserID: "u3", Email: "u3@example.com"},
	)
	f.addNotification(t, "n1", domain.NotificationProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// u1's row was inserted by an interrupted earlier run and never claimed.
	orphan := domain.NewDelivery("n1", "u1", "u1@example.com", "batch-old", time.Now().UTC())
	if _, err := f.deliveries.BulkInsertIgnore(ctx, []*domain.Delivery{orphan}); err != nil {
		t.Fatal(err)
	}

	mail := &stubMailer{}
	pool := f.startWorkers(ctx, mail, 2)
	defer pool.Wait()

	if err := f.runner.Process(ctx, "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, _ := f.notifications.GetByID(ctx, "n1")
	if n.Status != domain.NotificationCompleted {
		t.Fatalf("expected completed, got %s", n.Status)
	}
	if mail.Calls() != 3 {
		t.Fatalf("expected all 3 recipients sent, orphan included, got %d", mail.Calls())
	}

	adopted, err := f.deliveries.GetByID(ctx, orphan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if adopted.Status != domain.DeliverySent {
		t.Fatalf("orphaned row was not driven to sent, got %s", adopted.Status)
	}
	if adopted.BatchID != "batch-old" {
		t.Fatalf("claim must not re-tag the inserting run's batch, got %s", adopted.BatchID)
	}
	cancel()
}

func TestRunner_TriggerForUnknownNotificationIsNoop(t *testing.T) {
	f := newFixture()
	if err := f.runner.Process(context.Background(), "ghost"); err != nil {
		t.Fatalf("dangling trigger must be harmless, got %v", err)
	}
}

func TestRunner_TriggerForCancelledNotificationIsNoop(t *testing.T) {
	f := newFixture(audience.Recipient{UserID: "u1", Email: "u1@example.com"})
	f.addNotification(t, "n1", domain.NotificationCancelled)
	ctx := context.Background()

	if err := f.runner.Process(ctx, "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	histogram, _ := f.deliveries.CountByStatus(ctx, "n1")
	if len(histogram) != 0 {
		t.Fatalf("no rows may be created for a cancelled broadcast, got %v", histogram)
	}
	n, _ := f.notifications.GetByID(ctx, "n1")
	if n.Status != domain.NotificationCancelled {
		t.Fatalf("status must not move, got %s", n.Status)
	}
}

func TestRunner_EmptyAudienceCompletesImmediately(t *testing.T) {
	f := newFixture() // directory resolves to nobody
	f.addNotification(t, "n1", domain.NotificationScheduled)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := f.runner.Process(ctx, "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := f.notifications.GetByID(ctx, "n1")
	if n.Status != domain.NotificationCompleted {
		t.Fatalf("expected completed, got %s", n.Status)
	}
}

// A cancel that lands mid-flight wins: the run stops driving and the status
// stays CANCELLED, never flipping to COMPLETED.
func TestRunner_CancelMidFlightStopsRun(t *testing.T) {
	f := newFixture(audience.Recipient{UserID: "u1", Email: "u1@example.com"})
	f.addNotification(t, "n1", domain.NotificationScheduled)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.runner.Process(ctx, "n1") }()

	// Let the run claim its batch, then cancel out from under it.
	time.Sleep(50 * time.Millisecond)
	if err := f.notifications.UpdateStatus(ctx, "n1", domain.NotificationCancelled); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	n, _ := f.notifications.GetByID(ctx, "n1")
	if n.Status != domain.NotificationCancelled {
		t.Fatalf("expected cancelled to stick, got %s", n.Status)
	}
}
