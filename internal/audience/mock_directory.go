package audience

import (
	"context"
	"fmt"
)

// MockDirectory is a fixed in-memory Directory for unit tests.
type MockDirectory struct {
	Recipients []Recipient

	ResolveErr error
}

func (m *MockDirectory) AllSubscribed(context.Context) ([]Recipient, error) {
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	return append([]Recipient(nil), m.Recipients...), nil
}

func (m *MockDirectory) Segment(context.Context, SegmentPayload) ([]Recipient, error) {
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	return append([]Recipient(nil), m.Recipients...), nil
}

func (m *MockDirectory) ByID(_ context.Context, userID string) (Recipient, error) {
	if m.ResolveErr != nil {
		return Recipient{}, m.ResolveErr
	}
	for _, r := range m.Recipients {
		if r.UserID == userID {
			return r, nil
		}
	}
	return Recipient{}, fmt.Errorf("user %s not found", userID)
}

var _ Directory = (*MockDirectory)(nil)
