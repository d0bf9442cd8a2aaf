package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/broadcast/internal/auth"
	"github.com/notifyhub/broadcast/internal/domain"
	"github.com/notifyhub/broadcast/internal/repository"
	"github.com/notifyhub/broadcast/internal/scheduler"
)

// ScheduleName derives the scheduler entry name from the notification id.
// Deterministic on purpose: the name is always recoverable for compensation
// even when the database row never made it in.
func ScheduleName(notificationID string) string {
	return "notification-" + notificationID
}

// NotificationService owns the create/update/cancel use cases for scheduled
// broadcasts. The scheduler service and the database cannot share a
// transaction, so each flow orders its side effects explicitly and carries
// its own compensation:
//
//   - create and update touch the scheduler first and undo it if the DB
//     write fails. A dangling schedule entry is harmless (the fan-out worker
//     no-ops on a missing or terminal row); a DB row with no trigger would
//     silently never fire.
//   - cancel commits the DB first, under a row lock, then deletes the
//     schedule entry best-effort. After the commit the DB is authoritative;
//     a surviving trigger fires into a CANCELLED row and no-ops.
type NotificationService struct {
	authn      auth.Authenticator
	repo       repository.NotificationRepository
	deliveries repository.DeliveryRepository
	txm        repository.TxManager
	sched      scheduler.Client
	target     string // fan-out target handed to every schedule entry
	logger     *zap.Logger
	now        func() time.Time
}

func NewNotificationService(
	authn auth.Authenticator,
	repo repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	txm repository.TxManager,
	sched scheduler.Client,
	target string,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		authn:      authn,
		repo:       repo,
		deliveries: deliveries,
		txm:        txm,
		sched:      sched,
		target:     target,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests only.
func (s *NotificationService) WithClock(now func() time.Time) *NotificationService {
	s.now = now
	return s
}

// Create registers the external trigger first, then persists the entity.
// If persistence fails the just-created schedule entry is deleted
// best-effort and the original error is returned — a compensation failure is
// logged, never allowed to mask the root cause.
func (s *NotificationService) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.NotificationSummary, error) {
	admin, err := s.authn.CurrentAdmin(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	name := ScheduleName(id)

	ref, err := s.sched.CreateSchedule(ctx, name, req.SendAt, s.target, scheduler.TriggerPayload{NotificationID: id})
	if err != nil {
		return nil, fmt.Errorf("register schedule: %w", err)
	}

	n := &domain.Notification{
		ID:              id,
		Title:           req.Title,
		Subject:         req.Subject,
		BodyText:        req.BodyText,
		BodyHTML:        req.BodyHTML,
		SendAt:          req.SendAt,
		AudienceType:    req.AudienceType,
		AudiencePayload: req.AudiencePayload,
		Status:          domain.NotificationScheduled,
		SchedulerName:   &name,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		if derr := s.sched.DeleteSchedule(ctx, name); derr != nil {
			s.logger.Error("compensating schedule delete failed",
				zap.String("notification_id", id),
				zap.String("schedule_name", name),
				zap.Error(derr),
			)
		}
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	s.logger.Info("notification scheduled",
		zap.String("notification_id", id),
		zap.String("schedule_name", name),
		zap.String("schedule_arn", ref.ARN),
		zap.Time("send_at", req.SendAt),
		zap.String("admin_id", admin.ID),
	)

	return summaryOf(n), nil
}

// Cancel flips the notification to CANCELLED under a pessimistic row lock,
// then deletes the schedule entry outside the transaction. The lock makes
// check-then-act atomic against concurrent cancellers and the completion
// path; the post-commit delete is best-effort by design.
func (s *NotificationService) Cancel(ctx context.Context, id string) (*domain.NotificationSummary, error) {
	admin, err := s.authn.CurrentAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var (
		scheduleName *string
		summary      *domain.NotificationSummary
	)
	err = s.txm.WithinTx(ctx, func(txCtx context.Context) error {
		n, err := s.repo.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		switch n.Status {
		case domain.NotificationCancelled:
			return domain.ErrAlreadyCancelled
		case domain.NotificationCompleted:
			return domain.ErrAlreadyCompleted
		}

		scheduleName = n.SchedulerName
		n.Cancel()
		if err := s.repo.UpdateStatus(txCtx, n.ID, n.Status); err != nil {
			return fmt.Errorf("persist cancellation: %w", err)
		}
		summary = &domain.NotificationSummary{ID: n.ID, Title: n.Title, Status: n.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The DB now says CANCELLED; a failure here only leaves a stray trigger
	// that fires into a cancelled row and no-ops.
	if scheduleName != nil {
		if derr := s.sched.DeleteSchedule(ctx, *scheduleName); derr != nil {
			s.logger.Warn("schedule delete after cancel failed",
				zap.String("notification_id", id),
				zap.String("schedule_name", *scheduleName),
				zap.Error(derr),
			)
		}
	}

	s.logger.Info("notification cancelled",
		zap.String("notification_id", id),
		zap.String("admin_id", admin.ID),
	)
	return summary, nil
}

// Update repoints the external trigger first (same direction as create), then
// persists the new content under the row lock. If the DB write fails the
// schedule is pointed back at the previous send time, best-effort.
func (s *NotificationService) Update(ctx context.Context, id string, req domain.UpdateNotificationRequest) (*domain.NotificationSummary, error) {
	admin, err := s.authn.CurrentAdmin(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := updatable(current); err != nil {
		return nil, err
	}
	if current.SchedulerName == nil {
		return nil, fmt.Errorf("notification %s has no schedule entry", id)
	}

	name := *current.SchedulerName
	prevSendAt := current.SendAt
	payload := scheduler.TriggerPayload{NotificationID: id}

	if _, err := s.sched.UpdateSchedule(ctx, name, req.SendAt, s.target, payload); err != nil {
		return nil, fmt.Errorf("repoint schedule: %w", err)
	}

	var summary *domain.NotificationSummary
	err = s.txm.WithinTx(ctx, func(txCtx context.Context) error {
		n, err := s.repo.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		// Re-check under the lock: a cancel may have won the race since the
		// unlocked read above.
		if err := updatable(n); err != nil {
			return err
		}

		n.Title = req.Title
		n.Subject = req.Subject
		n.BodyText = req.BodyText
		n.BodyHTML = req.BodyHTML
		n.SendAt = req.SendAt
		if err := s.repo.UpdateContent(txCtx, n); err != nil {
			return fmt.Errorf("persist update: %w", err)
		}
		summary = summaryOf(n)
		return nil
	})
	if err != nil {
		if _, cerr := s.sched.UpdateSchedule(ctx, name, prevSendAt, s.target, payload); cerr != nil {
			s.logger.Error("compensating schedule repoint failed",
				zap.String("notification_id", id),
				zap.String("schedule_name", name),
				zap.Time("previous_send_at", prevSendAt),
				zap.Error(cerr),
			)
		}
		return nil, err
	}

	s.logger.Info("notification updated",
		zap.String("notification_id", id),
		zap.Time("send_at", req.SendAt),
		zap.String("admin_id", admin.ID),
	)
	return summary, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error) {
	return s.repo.List(ctx, filter)
}

// DeliverySummary reports the per-status delivery histogram for one broadcast.
type DeliverySummary struct {
	NotificationID string         `json:"notification_id"`
	Status         string         `json:"status"`
	Total          int            `json:"total"`
	Counts         map[string]int `json:"counts"`
}

func (s *NotificationService) DeliverySummary(ctx context.Context, id string) (*DeliverySummary, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	histogram, err := s.deliveries.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}

	summary := &DeliverySummary{
		NotificationID: id,
		Status:         n.Status.String(),
		Counts:         make(map[string]int, len(histogram)),
	}
	for status, count := range histogram {
		summary.Counts[status.String()] = count
		summary.Total += count
	}
	return summary, nil
}

// ---- private helpers ----

func updatable(n *domain.Notification) error {
	switch n.Status {
	case domain.NotificationCancelled:
		return domain.ErrAlreadyCancelled
	case domain.NotificationCompleted:
		return domain.ErrAlreadyCompleted
	case domain.NotificationProcessing:
		// Fan-out already started; content edits would hit only a slice of
		// recipients.
		return domain.ErrNotUpdatable
	}
	return nil
}

func summaryOf(n *domain.Notification) *domain.NotificationSummary {
	return &domain.NotificationSummary{
		ID:           n.ID,
		Title:        n.Title,
		Subject:      n.Subject,
		SendAt:       n.SendAt,
		AudienceType: n.AudienceType,
		Status:       n.Status,
	}
}
