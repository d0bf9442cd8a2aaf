package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// NotificationStatus tracks the lifecycle of a scheduled broadcast.
//
// The numeric values are stored as-is and follow HTTP-style bands so range
// queries over status stay cheap. They must not be renumbered: existing rows
// depend on them.
type NotificationStatus int

const (
	NotificationScheduled  NotificationStatus = 100
	NotificationProcessing NotificationStatus = 200
	NotificationCompleted  NotificationStatus = 300
	NotificationCancelled  NotificationStatus = 400
)

func (s NotificationStatus) String() string {
	switch s {
	case NotificationScheduled:
		return "scheduled"
	case NotificationProcessing:
		return "processing"
	case NotificationCompleted:
		return "completed"
	case NotificationCancelled:
		return "cancelled"
	}
	return "unknown"
}

// IsTerminal reports whether no further transition is defined out of s.
func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationCompleted || s == NotificationCancelled
}

// AudienceType selects how the fan-out worker resolves recipients.
type AudienceType int

const (
	AudienceAll     AudienceType = 1
	AudienceSegment AudienceType = 2
	AudienceSingle  AudienceType = 3
)

func (a AudienceType) IsValid() bool {
	switch a {
	case AudienceAll, AudienceSegment, AudienceSingle:
		return true
	}
	return false
}

func (a AudienceType) String() string {
	switch a {
	case AudienceAll:
		return "all"
	case AudienceSegment:
		return "segment"
	case AudienceSingle:
		return "single"
	}
	return "unknown"
}

// Notification is one scheduled broadcast to an audience.
//
// SchedulerName references the entry registered with the external scheduler.
// It stays populated after cancellation for audit purposes even though the
// remote entry is deleted.
type Notification struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Subject         string             `json:"subject"`
	BodyText        string             `json:"body_text"`
	BodyHTML        *string            `json:"body_html,omitempty"`
	SendAt          time.Time          `json:"send_at"`
	AudienceType    AudienceType       `json:"audience_type"`
	AudiencePayload json.RawMessage    `json:"audience_payload,omitempty"`
	Status          NotificationStatus `json:"status"`
	SchedulerName   *string            `json:"scheduler_name,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Cancel, Complete and StartProcessing are unconditional setters.
// Transition legality is checked one layer up, in the service, where a
// precondition failure carries a proper sentinel error and happens under
// the row lock.

func (n *Notification) Cancel()          { n.Status = NotificationCancelled }
func (n *Notification) Complete()        { n.Status = NotificationCompleted }
func (n *Notification) StartProcessing() { n.Status = NotificationProcessing }

// CanCancel reports whether a cancel is still meaningful:
// only scheduled and in-flight broadcasts can be cancelled.
func (n *Notification) CanCancel() bool {
	return n.Status == NotificationScheduled || n.Status == NotificationProcessing
}

// CreateNotificationRequest is the inbound payload for scheduling a broadcast.
type CreateNotificationRequest struct {
	Title           string          `json:"title"`
	Subject         string          `json:"subject"`
	BodyText        string          `json:"body_text"`
	BodyHTML        *string         `json:"body_html,omitempty"`
	SendAt          time.Time       `json:"send_at"`
	AudienceType    AudienceType    `json:"audience_type"`
	AudiencePayload json.RawMessage `json:"audience_payload,omitempty"`
}

func (r *CreateNotificationRequest) Validate(now time.Time) error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrInvalidTitle
	}
	if strings.TrimSpace(r.Subject) == "" {
		return ErrInvalidSubject
	}
	if strings.TrimSpace(r.BodyText) == "" {
		return ErrInvalidBody
	}
	if !r.AudienceType.IsValid() {
		return ErrInvalidAudience
	}
	if r.SendAt.IsZero() || !r.SendAt.After(now) {
		return ErrInvalidSendAt
	}
	// Segment and single audiences need a payload for the resolver.
	if r.AudienceType != AudienceAll && len(r.AudiencePayload) == 0 {
		return ErrInvalidAudience
	}
	return nil
}

// UpdateNotificationRequest carries the mutable content fields plus the new
// trigger time. The audience is intentionally not updatable; it is resolved
// at fire time anyway.
type UpdateNotificationRequest struct {
	Title    string    `json:"title"`
	Subject  string    `json:"subject"`
	BodyText string    `json:"body_text"`
	BodyHTML *string   `json:"body_html,omitempty"`
	SendAt   time.Time `json:"send_at"`
}

func (r *UpdateNotificationRequest) Validate(now time.Time) error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrInvalidTitle
	}
	if strings.TrimSpace(r.Subject) == "" {
		return ErrInvalidSubject
	}
	if strings.TrimSpace(r.BodyText) == "" {
		return ErrInvalidBody
	}
	if r.SendAt.IsZero() || !r.SendAt.After(now) {
		return ErrInvalidSendAt
	}
	return nil
}

// NotificationSummary is the DTO returned by the mutating use cases.
type NotificationSummary struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Subject      string             `json:"subject,omitempty"`
	SendAt       time.Time          `json:"send_at,omitzero"`
	AudienceType AudienceType       `json:"audience_type,omitempty"`
	Status       NotificationStatus `json:"status"`
}

// ListFilter holds query parameters for paginated notification listing.
type ListFilter struct {
	Status *NotificationStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}
