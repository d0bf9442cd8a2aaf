package domain

import "time"

// DeliveryStatus tracks one (notification, recipient) send attempt.
//
// Values follow HTTP-style bands: 2xx in flight, 3xx success, 4xx failure,
// 5xx skipped by policy. The bands make "status >= 400" scans cheap, but code
// should go through the predicates below rather than compare numbers.
type DeliveryStatus int

const (
	DeliveryPending      DeliveryStatus = 100
	DeliverySending      DeliveryStatus = 200
	DeliveryRetrying     DeliveryStatus = 210
	DeliverySent         DeliveryStatus = 300
	DeliveryFailed       DeliveryStatus = 400
	DeliveryBounced      DeliveryStatus = 410
	DeliveryComplained   DeliveryStatus = 420
	DeliverySuppressed   DeliveryStatus = 500
	DeliveryUnsubscribed DeliveryStatus = 510
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliverySending:
		return "sending"
	case DeliveryRetrying:
		return "retrying"
	case DeliverySent:
		return "sent"
	case DeliveryFailed:
		return "failed"
	case DeliveryBounced:
		return "bounced"
	case DeliveryComplained:
		return "complained"
	case DeliverySuppressed:
		return "suppressed"
	case DeliveryUnsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

// IsTerminal reports whether the delivery will never be attempted again.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliverySent, DeliveryFailed, DeliveryBounced, DeliveryComplained,
		DeliverySuppressed, DeliveryUnsubscribed:
		return true
	}
	return false
}

// IsFailed is true for every terminal failure variant.
func (s DeliveryStatus) IsFailed() bool {
	return s == DeliveryFailed || s == DeliveryBounced || s == DeliveryComplained
}

// IsSkipped is true when the recipient was excluded by policy before sending.
func (s DeliveryStatus) IsSkipped() bool {
	return s == DeliverySuppressed || s == DeliveryUnsubscribed
}

// Delivery is one per-recipient row produced by fan-out.
//
// ID is empty until the repository assigns it at bulk-insert time. The pair
// (NotificationID, UserID) is unique: however many times fan-out runs, a
// recipient gets at most one row per broadcast. Email is denormalized at
// insert so later profile edits do not change what was sent.
type Delivery struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Email          string         `json:"email"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastError      *string        `json:"last_error,omitempty"`
	SESMessageID   *string        `json:"ses_message_id,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	BatchID        string         `json:"batch_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewDelivery builds a pending row for one recipient of one fan-out run.
func NewDelivery(notificationID, userID, email, batchID string, now time.Time) *Delivery {
	return &Delivery{
		NotificationID: notificationID,
		UserID:         userID,
		Email:          email,
		Status:         DeliveryPending,
		BatchID:        batchID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkSending flips the row in-flight and counts the attempt.
func (d *Delivery) MarkSending() {
	d.Status = DeliverySending
	d.AttemptCount++
}

// MarkSent records the provider message id and the send time.
func (d *Delivery) MarkSent(messageID string, at time.Time) {
	d.Status = DeliverySent
	d.SESMessageID = &messageID
	d.SentAt = &at
	d.LastError = nil
}

// MarkRetrying queues the row for a later re-attempt after a transient error.
func (d *Delivery) MarkRetrying(reason string) {
	d.Status = DeliveryRetrying
	d.LastError = &reason
}

func (d *Delivery) MarkFailed(reason string) {
	d.Status = DeliveryFailed
	d.LastError = &reason
}

func (d *Delivery) MarkBounced(reason string) {
	d.Status = DeliveryBounced
	d.LastError = &reason
}

func (d *Delivery) MarkComplained(reason string) {
	d.Status = DeliveryComplained
	d.LastError = &reason
}

// MarkSuppressed records a policy skip; reason lands in LastError so the
// histogram and the row itself both explain why nothing was sent.
func (d *Delivery) MarkSuppressed(reason string) {
	d.Status = DeliverySuppressed
	d.LastError = &reason
}

func (d *Delivery) MarkUnsubscribed(reason string) {
	d.Status = DeliveryUnsubscribed
	d.LastError = &reason
}

// DeliveryResult is the terminal (or retrying) outcome of one send attempt,
// applied by the repository in a single row update.
type DeliveryResult struct {
	Status       DeliveryStatus
	SESMessageID *string
	LastError    *string
	SentAt       *time.Time
}
