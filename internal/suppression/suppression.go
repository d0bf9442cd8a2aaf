package suppression

import (
	"context"
	"time"
)

// Reason enumerates why an address is on the suppression list.
type Reason string

const (
	ReasonHardBounce  Reason = "hard_bounce"
	ReasonComplaint   Reason = "complaint"
	ReasonUnsubscribe Reason = "unsubscribe"
	ReasonManual      Reason = "manual"
)

// Entry is one suppressed address.
type Entry struct {
	Email     string
	Reason    Reason
	CreatedAt time.Time
}

// Store is consulted by dispatch workers before every send and written by the
// provider feedback webhook. Add is idempotent: re-suppressing an address is
// a no-op that keeps the original reason.
type Store interface {
	Check(ctx context.Context, email string) (Reason, bool, error)
	Add(ctx context.Context, email string, reason Reason) error
}
