package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrUnauthorized     = errors.New("unauthorized: admin session required")
	ErrNotFound         = errors.New("notification not found")
	ErrAlreadyCancelled = errors.New("notification is already cancelled")
	ErrAlreadyCompleted = errors.New("notification is already completed")
	ErrNotUpdatable     = errors.New("notification cannot be updated in its current status")

	ErrInvalidTitle    = errors.New("title must not be empty")
	ErrInvalidSubject  = errors.New("subject must not be empty")
	ErrInvalidBody     = errors.New("body_text must not be empty")
	ErrInvalidSendAt   = errors.New("send_at must be a future timestamp")
	ErrInvalidAudience = errors.New("invalid audience: type must be all, segment, or single, with a payload for segment and single")

	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrQueueFull        = errors.New("dispatch queue is at capacity, try again later")
)
