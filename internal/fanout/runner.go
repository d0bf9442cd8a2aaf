package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/audience"
	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/repository"
)

// Runner executes one fan-out: it expands a fired notification into
// per-recipient delivery rows, dispatches them to the send workers, and
// drives the batch until every delivery for the notification is terminal,
// at which point the notification is completed.
//
// Process is safe to invoke repeatedly for the same notification. The
// insert-ignore on (notification_id, user_id) keeps re-runs from duplicating
// rows, and the atomic pending-only claim picks up rows an interrupted run
// inserted but never dispatched, so overlapping runs converge.
type Runner struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	txm           repository.TxManager
	resolver      audience.Resolver
	q             *queue.DispatchQueue
	retryBackoff  time.Duration
	pollInterval  time.Duration
	logger        *zap.Logger
}

func NewRunner(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	txm repository.TxManager,
	resolver audience.Resolver,
	q *queue.DispatchQueue,
	retryBackoff time.Duration,
	pollInterval time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		notifications: notifications,
		deliveries:    deliveries,
		txm:           txm,
		resolver:      resolver,
		q:             q,
		retryBackoff:  retryBackoff,
		pollInterval:  pollInterval,
		logger:        logger,
	}
}

// Process handles one scheduler trigger. A missing row or a terminal status
// is a silent no-op: dangling schedule entries are expected after failed
// compensations and must be harmless.
func (r *Runner) Process(ctx context.Context, notificationID string) error {
	log := r.logger.With(zap.String("notification_id", notificationID))

	n, err := r.notifications.GetByID(ctx, notificationID)
	if err != nil {
		if err == domain.ErrNotFound {
			log.Info("trigger for unknown notification, ignoring")
			return nil
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.Status != domain.NotificationScheduled && n.Status != domain.NotificationProcessing {
		log.Info("trigger for inactive notification, ignoring",
			zap.String("status", n.Status.String()))
		return nil
	}

	if n.Status == domain.NotificationScheduled {
		n.StartProcessing()
		if err := r.notifications.UpdateStatus(ctx, n.ID, n.Status); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	}

	recipients, err := r.resolver.Resolve(ctx, n.AudienceType, n.AudiencePayload)
	if err != nil {
		return fmt.Errorf("resolve audience: %w", err)
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()
	rows := make([]*domain.Delivery, len(recipients))
	for i, rec := range recipients {
		rows[i] = domain.NewDelivery(n.ID, rec.UserID, rec.Email, batchID, now)
	}

	inserted, err := r.deliveries.BulkInsertIgnore(ctx, rows)
	if err != nil {
		return fmt.Errorf("bulk insert deliveries: %w", err)
	}

	// Claim every row still pending for this notification, not only this
	// run's batch: a run that died between insert and claim leaves pending
	// rows behind under its old batch_id, and they must be adopted here or
	// the broadcast never drains. Rows already in flight or resolved are
	// untouched, and claimed rows keep the batch_id that inserted them.
	claimed, err := r.deliveries.ClaimPending(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("claim pending rows: %w", err)
	}

	log.Info("fan-out started",
		zap.String("batch_id", batchID),
		zap.Int("recipients", len(recipients)),
		zap.Int("inserted", inserted),
		zap.Int("dispatched", len(claimed)),
	)

	for _, d := range claimed {
		if err := r.q.Enqueue(queue.Item{DeliveryID: d.ID, NotificationID: n.ID}); err != nil {
			// Queue pressure: flip the row back to retrying so the sweep
			// below picks it up once the workers catch up.
			log.Warn("dispatch queue full, deferring delivery", zap.String("delivery_id", d.ID))
			_ = r.deliveries.UpdateDeliveryResult(ctx, d.ID, domain.DeliveryResult{
				Status:    domain.DeliveryRetrying,
				LastError: strPtr("dispatch queue full"),
			})
		}
	}

	return r.drive(ctx, n.ID, batchID, log)
}

// drive re-enqueues due retries and checks for completion until every
// delivery of the notification is terminal or the notification leaves
// PROCESSING (cancelled mid-flight).
func (r *Runner) drive(ctx context.Context, notificationID, batchID string, log *zap.Logger) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		due, err := r.deliveries.FindRetrying(ctx, notificationID, time.Now().UTC().Add(-r.retryBackoff), 500)
		if err != nil {
			log.Error("retry scan failed", zap.Error(err))
			continue
		}
		for _, d := range due {
			if err := r.q.Enqueue(queue.Item{DeliveryID: d.ID, NotificationID: notificationID, Retry: true}); err != nil {
				break // queue still full; next tick retries
			}
		}

		done, err := r.tryComplete(ctx, notificationID)
		if err != nil {
			log.Error("completion check failed", zap.Error(err))
			continue
		}
		if done {
			log.Info("fan-out finished", zap.String("batch_id", batchID))
			return nil
		}
	}
}

// tryComplete flips the notification to COMPLETED once no non-terminal
// deliveries remain. The row lock keeps the check-then-act atomic against a
// concurrent cancel: a cancel that wins the lock first leaves the status at
// CANCELLED and this run simply stops.
func (r *Runner) tryComplete(ctx context.Context, notificationID string) (bool, error) {
	var done bool
	err := r.txm.WithinTx(ctx, func(txCtx context.Context) error {
		n, err := r.notifications.GetByIDForUpdate(txCtx, notificationID)
		if err != nil {
			return err
		}
		if n.Status != domain.NotificationProcessing {
			done = true // cancelled or completed elsewhere; nothing left to drive
			return nil
		}

		histogram, err := r.deliveries.CountByStatus(txCtx, notificationID)
		if err != nil {
			return err
		}
		for status, count := range histogram {
			if !status.IsTerminal() && count > 0 {
				return nil
			}
		}

		n.Complete()
		if err := r.notifications.UpdateStatus(txCtx, n.ID, n.Status); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

func strPtr(s string) *string { return &s }
