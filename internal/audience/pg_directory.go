package audience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads recipients from the users table.
// Unsubscribed users are excluded at the directory level for ALL and SEGMENT
// audiences; SINGLE skips the filter on purpose — an explicit one-off send to
// a known user is still suppression-checked at dispatch time.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) AllSubscribed(ctx context.Context) ([]Recipient, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, email FROM users
		WHERE subscribed = TRUE
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query all subscribed users: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (d *PgDirectory) Segment(ctx context.Context, seg SegmentPayload) ([]Recipient, error) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	conditions = append(conditions, "subscribed = TRUE")
	if seg.Plan != "" {
		add("plan = $%d", seg.Plan)
	}
	if seg.SignedUpAfter != nil {
		add("created_at >= $%d", *seg.SignedUpAfter)
	}
	if seg.SignedUpBefore != nil {
		add("created_at <= $%d", *seg.SignedUpBefore)
	}

	query := `SELECT id, email FROM users WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY id`
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user segment: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func (d *PgDirectory) ByID(ctx context.Context, userID string) (Recipient, error) {
	var r Recipient
	err := d.pool.QueryRow(ctx,
		`SELECT id, email FROM users WHERE id = $1`, userID,
	).Scan(&r.UserID, &r.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipient{}, fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return Recipient{}, fmt.Errorf("query user by id: %w", err)
	}
	return r, nil
}

func scanRecipients(rows pgx.Rows) ([]Recipient, error) {
	var result []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.UserID, &r.Email); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

var _ Directory = (*PgDirectory)(nil)
