package fanout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/mailer"
	"github.com/notifyhub/broadcast/internal/queue"
	"github.com/notifyhub/broadcast/internal/ratelimiter"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/suppression"
)

// Worker is a single goroutine that continuously pulls delivery items from
// the dispatch queue, applies suppression policy and rate limiting, sends
// through the mailer, and records each attempt's outcome.
type Worker struct {
	id            int
	q             *queue.DispatchQueue
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	mail          mailer.Mailer
	suppressions  suppression.Store
	limiter       *ratelimiter.SendLimiter
	maxAttempts   int
	logger        *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onSent       func(latency time.Duration)
	onFailed     func()
	onSuppressed func()
}

// NewWorker constructs a worker. The hooks are optional (nil = no-op).
func NewWorker(
	id int,
	q *queue.DispatchQueue,
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	mail mailer.Mailer,
	suppressions suppression.Store,
	limiter *ratelimiter.SendLimiter,
	maxAttempts int,
	logger *zap.Logger,
	onSent func(time.Duration),
	onFailed func(),
	onSuppressed func(),
) *Worker {
	if onSent == nil {
		onSent = func(time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func() {}
	}
	if onSuppressed == nil {
		onSuppressed = func() {}
	}
	return &Worker{
		id: id, q: q,
		notifications: notifications, deliveries: deliveries,
		mail: mail, suppressions: suppressions, limiter: limiter,
		maxAttempts: maxAttempts, logger: logger,
		onSent: onSent, onFailed: onFailed, onSuppressed: onSuppressed,
	}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("send worker started", zap.Int("id", w.id))
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.logger.Info("send worker stopping", zap.Int("id", w.id))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := w.logger.With(
		zap.String("delivery_id", item.DeliveryID),
		zap.String("notification_id", item.NotificationID),
	)

	d, err := w.deliveries.GetByID(ctx, item.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrDeliveryNotFound) {
			return
		}
		log.Error("failed to fetch delivery", zap.Error(err))
		w.deferRetry(ctx, item.DeliveryID, "delivery lookup failed", log)
		return
	}
	if d.Status.IsTerminal() {
		return
	}

	// A cancellation between enqueue and processing time is valid; leave the
	// row untouched — a cancelled broadcast never completes, so the row's
	// non-terminal state blocks nothing.
	n, err := w.notifications.GetByID(ctx, d.NotificationID)
	if err != nil {
		log.Error("failed to fetch notification", zap.Error(err))
		if !errors.Is(err, domain.ErrNotFound) {
			w.deferRetry(ctx, d.ID, "notification lookup failed", log)
		}
		return
	}
	if n.Status != domain.NotificationProcessing {
		log.Debug("notification no longer processing, skipping",
			zap.String("status", n.Status.String()))
		return
	}

	// Policy check before any attempt counts against the row.
	if reason, hit, err := w.suppressions.Check(ctx, d.Email); err != nil {
		log.Error("suppression check failed", zap.Error(err))
		w.deferRetry(ctx, d.ID, "suppression check failed", log)
		return
	} else if hit {
		w.skip(ctx, d, reason, log)
		return
	}

	if err := w.deliveries.MarkSending(ctx, d.ID); err != nil {
		if errors.Is(err, domain.ErrDeliveryNotFound) {
			return // row resolved between fetch and claim
		}
		log.Error("failed to mark as sending", zap.Error(err))
		w.deferRetry(ctx, d.ID, "claim for sending failed", log)
		return
	}
	d.MarkSending()

	// Block here until the limiter grants a token.
	if err := w.limiter.Wait(ctx); err != nil {
		// ctx cancelled while waiting — worker is shutting down. Requeue the
		// attempt via the retry path so it survives the restart.
		w.deferRetry(context.WithoutCancel(ctx), d.ID, "shutdown during dispatch", log)
		return
	}

	result, err := w.mail.Send(ctx, mailer.OutboundEmail{
		To:       d.Email,
		Subject:  n.Subject,
		BodyText: n.BodyText,
		BodyHTML: deref(n.BodyHTML),
	})
	elapsed := time.Since(start)

	if err != nil {
		w.handleFailure(ctx, d, err, log)
		return
	}

	now := time.Now().UTC()
	if err := w.deliveries.UpdateDeliveryResult(ctx, d.ID, domain.DeliveryResult{
		Status:       domain.DeliverySent,
		SESMessageID: &result.MessageID,
		SentAt:       &now,
	}); err != nil {
		log.Error("failed to mark as sent", zap.Error(err))
		return
	}

	w.onSent(elapsed)
	log.Info("delivery sent",
		zap.String("ses_message_id", result.MessageID),
		zap.Duration("latency", elapsed),
	)
}

// skip resolves a policy hit to its terminal skipped status.
func (w *Worker) skip(ctx context.Context, d *domain.Delivery, reason suppression.Reason, log *zap.Logger) {
	status := domain.DeliverySuppressed
	if reason == suppression.ReasonUnsubscribe {
		status = domain.DeliveryUnsubscribed
	}
	msg := string(reason)
	if err := w.deliveries.UpdateDeliveryResult(ctx, d.ID, domain.DeliveryResult{
		Status:    status,
		LastError: &msg,
	}); err != nil {
		log.Error("failed to mark as skipped", zap.Error(err))
		return
	}
	w.onSuppressed()
	log.Info("delivery skipped by policy", zap.String("reason", msg))
}

// deferRetry parks a claimed row on the retry path so the drive loop's sweep
// re-dispatches it. Left at SENDING the row would be invisible to the sweep
// and block completion.
func (w *Worker) deferRetry(ctx context.Context, deliveryID, cause string, log *zap.Logger) {
	err := w.deliveries.UpdateDeliveryResult(ctx, deliveryID, domain.DeliveryResult{
		Status:    domain.DeliveryRetrying,
		LastError: &cause,
	})
	if err != nil && !errors.Is(err, domain.ErrDeliveryNotFound) {
		log.Error("failed to defer delivery for retry", zap.Error(err))
	}
}

// handleFailure records a permanent failure, or queues a re-attempt while
// attempts remain. Retry timing is owned by the runner's sweep; the worker
// only flips the status.
func (w *Worker) handleFailure(ctx context.Context, d *domain.Delivery, sendErr error, log *zap.Logger) {
	msg := sendErr.Error()

	status := domain.DeliveryRetrying
	if mailer.IsPermanent(sendErr) || d.AttemptCount >= w.maxAttempts {
		status = domain.DeliveryFailed
		w.onFailed()
	}

	if err := w.deliveries.UpdateDeliveryResult(ctx, d.ID, domain.DeliveryResult{
		Status:    status,
		LastError: &msg,
	}); err != nil {
		log.Error("failed to record send failure", zap.Error(err))
		return
	}

	log.Warn("send attempt failed",
		zap.Error(sendErr),
		zap.Int("attempt", d.AttemptCount),
		zap.String("outcome", status.String()),
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
