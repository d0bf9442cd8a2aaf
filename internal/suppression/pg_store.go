package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the PostgreSQL suppression list. Addresses are stored
// lower-cased; the unique constraint on email makes Add idempotent.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Check(ctx context.Context, email string) (Reason, bool, error) {
	var reason Reason
	err := s.pool.QueryRow(ctx,
		`SELECT reason FROM suppressions WHERE email = $1`,
		strings.ToLower(email),
	).Scan(&reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check suppression: %w", err)
	}
	return reason, true, nil
}

func (s *PgStore) Add(ctx context.Context, email string, reason Reason) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suppressions (email, reason, created_at)
		VALUES ($1, $2, NOW())`,
		strings.ToLower(email), reason,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil // already suppressed; first reason wins
		}
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

var _ Store = (*PgStore)(nil)
