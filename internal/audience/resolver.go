package audience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notifyhub/broadcast/internal/domain"
)

// Recipient is one resolved audience member. Email is captured here and
// denormalized into the delivery row, so later profile edits never change
// what a broadcast was addressed to.
type Recipient struct {
	UserID string
	Email  string
}

// SegmentPayload is the audience_payload shape for AudienceSegment.
// Zero-valued fields are not applied.
type SegmentPayload struct {
	Plan           string     `json:"plan,omitempty"`
	SignedUpAfter  *time.Time `json:"signedUpAfter,omitempty"`
	SignedUpBefore *time.Time `json:"signedUpBefore,omitempty"`
}

// SinglePayload is the audience_payload shape for AudienceSingle.
type SinglePayload struct {
	UserID string `json:"userId"`
}

// Resolver expands an audience descriptor into concrete recipients at fan-out
// time. The payload is opaque to the rest of the system; only this package
// interprets it.
type Resolver interface {
	Resolve(ctx context.Context, audienceType domain.AudienceType, payload json.RawMessage) ([]Recipient, error)
}

// directoryResolver resolves audiences against a user directory.
type directoryResolver struct {
	dir Directory
}

// NewResolver builds the standard Resolver on top of a Directory.
func NewResolver(dir Directory) Resolver {
	return &directoryResolver{dir: dir}
}

func (r *directoryResolver) Resolve(ctx context.Context, audienceType domain.AudienceType, payload json.RawMessage) ([]Recipient, error) {
	switch audienceType {
	case domain.AudienceAll:
		return r.dir.AllSubscribed(ctx)

	case domain.AudienceSegment:
		var seg SegmentPayload
		if err := json.Unmarshal(payload, &seg); err != nil {
			return nil, fmt.Errorf("parse segment payload: %w", err)
		}
		return r.dir.Segment(ctx, seg)

	case domain.AudienceSingle:
		var single SinglePayload
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil, fmt.Errorf("parse single payload: %w", err)
		}
		if single.UserID == "" {
			return nil, fmt.Errorf("single audience: %w", domain.ErrInvalidAudience)
		}
		rec, err := r.dir.ByID(ctx, single.UserID)
		if err != nil {
			return nil, err
		}
		return []Recipient{rec}, nil
	}
	return nil, fmt.Errorf("audience type %d: %w", audienceType, domain.ErrInvalidAudience)
}

// Directory is the read-only view of the user base the resolver needs.
type Directory interface {
	AllSubscribed(ctx context.Context) ([]Recipient, error)
	Segment(ctx context.Context, seg SegmentPayload) ([]Recipient, error)
	ByID(ctx context.Context, userID string) (Recipient, error)
}
