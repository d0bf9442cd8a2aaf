package audience_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/notifyhub/broadcast/internal/audience"
	"github.com/notifyhub/broadcast/internal/domain"
)

func TestResolver_Resolve(t *testing.T) {
	dir := &audience.MockDirectory{Recipients: []audience.Recipient{
		{UserID: "u1", Email: "u1@example.com"},
		{UserID: "u2", Email: "u2@example.com"},
	}}
	r := audience.NewResolver(dir)
	ctx := context.Background()

	t.Run("all", func(t *testing.T) {
		got, err := r.Resolve(ctx, domain.AudienceAll, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 recipients, got %d", len(got))
		}
	})

	t.Run("single", func(t *testing.T) {
		got, err := r.Resolve(ctx, domain.AudienceSingle, json.RawMessage(`{"userId":"u2"}`))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].UserID != "u2" {
			t.Fatalf("unexpected recipients %v", got)
		}
	})

	t.Run("single without user id", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.AudienceSingle, json.RawMessage(`{}`))
		if !errors.Is(err, domain.ErrInvalidAudience) {
			t.Fatalf("expected ErrInvalidAudience, got %v", err)
		}
	})

	t.Run("segment with bad payload", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.AudienceSegment, json.RawMessage(`not json`))
		if err == nil {
			t.Fatal("expected a parse error")
		}
	})

	t.Run("unknown audience type", func(t *testing.T) {
		_, err := r.Resolve(ctx, 42, nil)
		if !errors.Is(err, domain.ErrInvalidAudience) {
			t.Fatalf("expected ErrInvalidAudience, got %v", err)
		}
	})
}
