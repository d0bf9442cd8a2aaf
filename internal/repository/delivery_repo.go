package repository

import (
	"context"
	"time"

	"github.com/notifyhub/broadcast/internal/domain"
)

// DeliveryRepository defines the bulk fan-out persistence contract.
// Any implementation must honor two invariants:
//
//   - BulkInsertIgnore never touches an existing (notification_id, user_id)
//     row: repeated or overlapping fan-out runs must not re-claim a row's
//     batch_id nor regress a status that is already in flight or resolved.
//   - No update operation moves a terminal row back to pending.
type DeliveryRepository interface {
	// BulkInsertIgnore inserts pending rows in one round trip, assigning ids.
	// Conflicting rows are silently skipped; the count of actually inserted
	// rows is returned.
	BulkInsertIgnore(ctx context.Context, deliveries []*domain.Delivery) (int, error)

	GetByID(ctx context.Context, id string) (*domain.Delivery, error)

	// FindByBatchID and FindPendingByBatchID are scoped to one fan-out run so
	// a retry pass only ever targets rows it inserted itself.
	FindByBatchID(ctx context.Context, notificationID, batchID string) ([]*domain.Delivery, error)
	FindPendingByBatchID(ctx context.Context, notificationID, batchID string) ([]*domain.Delivery, error)

	// BulkUpdateStatus transitions a set of non-terminal rows in one statement.
	// Used to mark a batch as sending before dispatch; terminal rows in ids
	// are left untouched.
	BulkUpdateStatus(ctx context.Context, ids []string, status domain.DeliveryStatus) error

	// ClaimPending atomically flips every PENDING row of the notification to
	// SENDING and returns the claimed rows. The scan is deliberately not
	// batch-scoped: a run that crashed between insert and claim leaves pending
	// rows behind under its own batch_id, and the next run must adopt them or
	// the broadcast can never drain. Rows keep the batch_id of the run that
	// inserted them; concurrent claimers partition the pending set, each row
	// is returned to exactly one of them.
	ClaimPending(ctx context.Context, notificationID string) ([]*domain.Delivery, error)

	// MarkSending flips one row in-flight and increments its attempt count.
	MarkSending(ctx context.Context, id string) error

	// UpdateDeliveryResult applies one send attempt's outcome to a single
	// non-terminal row.
	UpdateDeliveryResult(ctx context.Context, id string, result domain.DeliveryResult) error

	// UpdateResultByMessageID handles asynchronous provider feedback
	// (bounce, complaint) keyed by the provider message id of a sent row.
	UpdateResultByMessageID(ctx context.Context, sesMessageID string, status domain.DeliveryStatus, reason string) error

	// FindRetrying scans rows queued for re-attempt that have been waiting at
	// least since olderThan. Backed by the (status, updated_at) index.
	FindRetrying(ctx context.Context, notificationID string, olderThan time.Time, limit int) ([]*domain.Delivery, error)

	// CountByStatus returns the per-status histogram for one notification.
	CountByStatus(ctx context.Context, notificationID string) (map[domain.DeliveryStatus]int, error)
}
