package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/broadcast/internal/domain"
)

const notificationColumns = `id, title, subject, body_text, body_html, send_at,
	audience_type, audience_payload, status, scheduler_name, created_at, updated_at`

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := querier(ctx, r.pool).Exec(ctx, `
		INSERT INTO notifications
			(id, title, subject, body_text, body_html, send_at,
			 audience_type, audience_payload, status, scheduler_name, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.Title, n.Subject, n.BodyText, n.BodyHTML, n.SendAt,
		n.AudienceType, n.AudiencePayload, n.Status, n.SchedulerName, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Notification, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("GetByIDForUpdate called outside a transaction")
	}

	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 FOR UPDATE`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) UpdateContent(ctx context.Context, n *domain.Notification) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE notifications
		SET title = $1, subject = $2, body_text = $3, body_html = $4,
		    send_at = $5, updated_at = NOW()
		WHERE id = $6`,
		n.Title, n.Subject, n.BodyText, n.BodyHTML, n.SendAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("update notification content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgNotificationRepository) UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE notifications SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgNotificationRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	where, args := buildListWhere(f)
	offset := (f.Page - 1) * f.Limit

	var total int
	if err := querier(ctx, r.pool).QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`SELECT `+notificationColumns+` FROM notifications%s
		ORDER BY send_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := querier(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	return notifications, total, err
}

func (r *pgNotificationRepository) FindDue(ctx context.Context, limit int) ([]*domain.Notification, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = $1 AND send_at <= NOW()
		ORDER BY send_at ASC
		LIMIT $2`, domain.NotificationScheduled, limit)
	if err != nil {
		return nil, fmt.Errorf("find due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ---- helpers ----

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.Title, &n.Subject, &n.BodyText, &n.BodyHTML, &n.SendAt,
		&n.AudienceType, &n.AudiencePayload, &n.Status, &n.SchedulerName,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// buildListWhere builds a parameterised WHERE clause from a ListFilter.
func buildListWhere(f domain.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.From != nil {
		add("send_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("send_at <= $%d", *f.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
