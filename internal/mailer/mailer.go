package mailer

import (
	"context"
	"errors"
)

// OutboundEmail is one rendered message for one recipient.
type OutboundEmail struct {
	To       string
	Subject  string
	BodyText string
	BodyHTML string
}

// SendResult carries the provider's acknowledgement of an accepted message.
type SendResult struct {
	MessageID string
}

// Mailer abstracts the transactional email provider.
// Mocking this interface in tests gives full control over provider behaviour
// without making real HTTP calls.
type Mailer interface {
	Send(ctx context.Context, email OutboundEmail) (SendResult, error)
}

// PermanentError marks a send failure that will not succeed on retry
// (rejected address, malformed message). Everything else is treated as
// transient and requeued.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string { return "permanent send failure: " + e.Reason }

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
