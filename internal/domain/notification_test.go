package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/notifyhub/broadcast/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validCreateRequest() domain.CreateNotificationRequest {
	return domain.CreateNotificationRequest{
		Title:        "March launch",
		Subject:      "Something new is here",
		BodyText:     "Hello!",
		SendAt:       testNow.Add(time.Hour),
		AudienceType: domain.AudienceAll,
	}
}

func TestCreateNotificationRequest_Validate(t *testing.T) {
	t.Run("valid request passes", func(t *testing.T) {
		r := validCreateRequest()
		if err := r.Validate(testNow); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty title", func(t *testing.T) {
		r := validCreateRequest()
		r.Title = "   "
		if err := r.Validate(testNow); err != domain.ErrInvalidTitle {
			t.Fatalf("expected ErrInvalidTitle, got %v", err)
		}
	})

	t.Run("empty subject", func(t *testing.T) {
		r := validCreateRequest()
		r.Subject = ""
		if err := r.Validate(testNow); err != domain.ErrInvalidSubject {
			t.Fatalf("expected ErrInvalidSubject, got %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		r := validCreateRequest()
		r.BodyText = ""
		if err := r.Validate(testNow); err != domain.ErrInvalidBody {
			t.Fatalf("expected ErrInvalidBody, got %v", err)
		}
	})

	t.Run("invalid audience type", func(t *testing.T) {
		r := validCreateRequest()
		r.AudienceType = 9
		if err := r.Validate(testNow); err != domain.ErrInvalidAudience {
			t.Fatalf("expected ErrInvalidAudience, got %v", err)
		}
	})

	t.Run("send time in the past", func(t *testing.T) {
		r := validCreateRequest()
		r.SendAt = testNow.Add(-time.Minute)
		if err := r.Validate(testNow); err != domain.ErrInvalidSendAt {
			t.Fatalf("expected ErrInvalidSendAt, got %v", err)
		}
	})

	t.Run("send time equal to now", func(t *testing.T) {
		r := validCreateRequest()
		r.SendAt = testNow
		if err := r.Validate(testNow); err != domain.ErrInvalidSendAt {
			t.Fatalf("expected ErrInvalidSendAt, got %v", err)
		}
	})

	t.Run("zero send time", func(t *testing.T) {
		r := validCreateRequest()
		r.SendAt = time.Time{}
		if err := r.Validate(testNow); err != domain.ErrInvalidSendAt {
			t.Fatalf("expected ErrInvalidSendAt, got %v", err)
		}
	})

	t.Run("segment without payload", func(t *testing.T) {
		r := validCreateRequest()
		r.AudienceType = domain.AudienceSegment
		if err := r.Validate(testNow); err != domain.ErrInvalidAudience {
			t.Fatalf("expected ErrInvalidAudience, got %v", err)
		}
	})

	t.Run("single without payload", func(t *testing.T) {
		r := validCreateRequest()
		r.AudienceType = domain.AudienceSingle
		if err := r.Validate(testNow); err != domain.ErrInvalidAudience {
			t.Fatalf("expected ErrInvalidAudience, got %v", err)
		}
	})

	t.Run("segment with payload passes", func(t *testing.T) {
		r := validCreateRequest()
		r.AudienceType = domain.AudienceSegment
		r.AudiencePayload = json.RawMessage(`{"plan":"pro"}`)
		if err := r.Validate(testNow); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestUpdateNotificationRequest_Validate(t *testing.T) {
	valid := domain.UpdateNotificationRequest{
		Title:    "Updated",
		Subject:  "Updated subject",
		BodyText: "Body",
		SendAt:   testNow.Add(2 * time.Hour),
	}

	if err := valid.Validate(testNow); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	r := valid
	r.SendAt = testNow.Add(-time.Hour)
	if err := r.Validate(testNow); err != domain.ErrInvalidSendAt {
		t.Fatalf("expected ErrInvalidSendAt, got %v", err)
	}

	r = valid
	r.Title = ""
	if err := r.Validate(testNow); err != domain.ErrInvalidTitle {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
}

func TestNotificationStatus_Values(t *testing.T) {
	// The stored numeric values are part of the schema contract.
	if domain.NotificationScheduled != 100 ||
		domain.NotificationProcessing != 200 ||
		domain.NotificationCompleted != 300 ||
		domain.NotificationCancelled != 400 {
		t.Fatal("notification status values changed")
	}
}

func TestNotificationStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   domain.NotificationStatus
		terminal bool
	}{
		{domain.NotificationScheduled, false},
		{domain.NotificationProcessing, false},
		{domain.NotificationCompleted, true},
		{domain.NotificationCancelled, true},
	}
	for _, tc := range tests {
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Errorf("%s: IsTerminal()=%v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestNotification_CanCancel(t *testing.T) {
	n := &domain.Notification{Status: domain.NotificationScheduled}
	if !n.CanCancel() {
		t.Fatal("scheduled should be cancellable")
	}
	n.StartProcessing()
	if !n.CanCancel() {
		t.Fatal("processing should be cancellable")
	}
	n.Complete()
	if n.CanCancel() {
		t.Fatal("completed should not be cancellable")
	}
}

// The entity setters are unconditional; transition legality lives in the
// service, under the row lock.
func TestNotification_SettersAreUnconditional(t *testing.T) {
	n := &domain.Notification{Status: domain.NotificationCompleted}
	n.Cancel()
	if n.Status != domain.NotificationCancelled {
		t.Fatalf("expected cancelled, got %s", n.Status)
	}
}

func TestAudienceType(t *testing.T) {
	if domain.AudienceAll != 1 || domain.AudienceSegment != 2 || domain.AudienceSingle != 3 {
		t.Fatal("audience type values changed")
	}
	if domain.AudienceType(0).IsValid() || domain.AudienceType(4).IsValid() {
		t.Fatal("out-of-range audience types must be invalid")
	}
	if domain.AudienceSegment.String() != "segment" {
		t.Fatalf("unexpected string: %s", domain.AudienceSegment)
	}
}
