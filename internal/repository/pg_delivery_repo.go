package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/broadcast/internal/domain"
)

const deliveryColumns = `id, notification_id, user_id, email, status, attempt_count,
	last_error, ses_message_id, sent_at, batch_id, created_at, updated_at`

// nonTerminalGuard keeps every UPDATE monotonic: rows that already reached a
// terminal band are never rewritten by attempt-path updates.
const nonTerminalGuard = `status IN (100, 200, 210)`

type pgDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeliveryRepository returns a DeliveryRepository backed by PostgreSQL.
func NewPgDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepository{pool: pool}
}

// BulkInsertIgnore assigns ids and inserts all rows in a single batched round
// trip. ON CONFLICT DO NOTHING makes re-issued fan-out runs safe: a row
// already claimed by an earlier run keeps its batch_id and status untouched.
func (r *pgDeliveryRepository) BulkInsertIgnore(ctx context.Context, deliveries []*domain.Delivery) (int, error) {
	if len(deliveries) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, d := range deliveries {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		batch.Queue(`
			INSERT INTO deliveries
				(id, notification_id, user_id, email, status, attempt_count,
				 batch_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (notification_id, user_id) DO NOTHING`,
			d.ID, d.NotificationID, d.UserID, d.Email, d.Status, d.AttemptCount,
			d.BatchID, d.CreatedAt, d.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	inserted := 0
	for range deliveries {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("bulk insert deliveries: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *pgDeliveryRepository) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeliveryNotFound
	}
	return d, err
}

func (r *pgDeliveryRepository) FindByBatchID(ctx context.Context, notificationID, batchID string) ([]*domain.Delivery, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE notification_id = $1 AND batch_id = $2
		ORDER BY created_at ASC`, notificationID, batchID)
	if err != nil {
		return nil, fmt.Errorf("find deliveries by batch: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) FindPendingByBatchID(ctx context.Context, notificationID, batchID string) ([]*domain.Delivery, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE notification_id = $1 AND batch_id = $2 AND status = $3
		ORDER BY created_at ASC`, notificationID, batchID, domain.DeliveryPending)
	if err != nil {
		return nil, fmt.Errorf("find pending deliveries by batch: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) BulkUpdateStatus(ctx context.Context, ids []string, status domain.DeliveryStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE deliveries
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND `+nonTerminalGuard,
		status, ids)
	if err != nil {
		return fmt.Errorf("bulk update delivery status: %w", err)
	}
	return nil
}

// ClaimPending relies on row-level locking for its exactly-once guarantee:
// two concurrent UPDATEs never both match the same PENDING row, so each
// claimed row comes back from exactly one caller's RETURNING set.
func (r *pgDeliveryRepository) ClaimPending(ctx context.Context, notificationID string) ([]*domain.Delivery, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		UPDATE deliveries
		SET status = $1, updated_at = NOW()
		WHERE notification_id = $2 AND status = $3
		RETURNING `+deliveryColumns,
		domain.DeliverySending, notificationID, domain.DeliveryPending)
	if err != nil {
		return nil, fmt.Errorf("claim pending deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) MarkSending(ctx context.Context, id string) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE deliveries
		SET status = $1, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $2 AND `+nonTerminalGuard,
		domain.DeliverySending, id)
	if err != nil {
		return fmt.Errorf("mark delivery sending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (r *pgDeliveryRepository) UpdateDeliveryResult(ctx context.Context, id string, result domain.DeliveryResult) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE deliveries
		SET status = $1,
		    ses_message_id = COALESCE($2, ses_message_id),
		    last_error = $3,
		    sent_at = COALESCE($4, sent_at),
		    updated_at = NOW()
		WHERE id = $5 AND `+nonTerminalGuard,
		result.Status, result.SESMessageID, result.LastError, result.SentAt, id)
	if err != nil {
		return fmt.Errorf("update delivery result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

// UpdateResultByMessageID applies asynchronous bounce/complaint feedback.
// Only rows that were actually sent can bounce; anything else is a stray
// event and affects zero rows.
func (r *pgDeliveryRepository) UpdateResultByMessageID(ctx context.Context, sesMessageID string, status domain.DeliveryStatus, reason string) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE deliveries
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE ses_message_id = $3 AND status = $4`,
		status, reason, sesMessageID, domain.DeliverySent)
	if err != nil {
		return fmt.Errorf("update delivery by message id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (r *pgDeliveryRepository) FindRetrying(ctx context.Context, notificationID string, olderThan time.Time, limit int) ([]*domain.Delivery, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE notification_id = $1 AND status = $2 AND updated_at <= $3
		ORDER BY updated_at ASC
		LIMIT $4`, notificationID, domain.DeliveryRetrying, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("find retrying deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) CountByStatus(ctx context.Context, notificationID string) (map[domain.DeliveryStatus]int, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT status, COUNT(*)
		FROM deliveries
		WHERE notification_id = $1
		GROUP BY status`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries by status: %w", err)
	}
	defer rows.Close()

	histogram := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status domain.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		histogram[status] = count
	}
	return histogram, rows.Err()
}

// ---- helpers ----

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.NotificationID, &d.UserID, &d.Email, &d.Status, &d.AttemptCount,
		&d.LastError, &d.SESMessageID, &d.SentAt, &d.BatchID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDeliveries(rows pgx.Rows) ([]*domain.Delivery, error) {
	var result []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
