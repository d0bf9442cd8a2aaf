package repository

import (
	"context"

	"github.com/notifyhub/broadcast/internal/domain"
)

// NotificationRepository defines all persistence operations for notifications.
// The pgx implementation is in pg_notification_repo.go.
// Tests use a hand-written mock (mock_notification_repo.go).
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)

	// GetByIDForUpdate acquires a pessimistic row lock (SELECT ... FOR UPDATE)
	// and is only legal inside TxManager.WithinTx. The lock serializes
	// concurrent status mutations on the same notification until commit.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Notification, error)

	UpdateContent(ctx context.Context, n *domain.Notification) error
	UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Notification, int, error)

	// FindDue scans for scheduled notifications whose send_at has passed.
	// Operational safety net for triggers the external scheduler lost.
	FindDue(ctx context.Context, limit int) ([]*domain.Notification, error)
}

// TxManager opens a database transaction and runs fn inside it. The
// transaction rides on the returned context: repository methods called with
// that context join it, so the critical section (lock, validate, mutate,
// persist) commits or rolls back as one unit. External calls must stay
// outside fn — a row lock must never be held across a network call.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
