package suppression

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory suppression list for unit tests.
type MockStore struct {
	mu      sync.RWMutex
	entries map[string]Entry

	CheckErr error
}

func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]Entry)}
}

func (m *MockStore) Check(_ context.Context, email string) (Reason, bool, error) {
	if m.CheckErr != nil {
		return "", false, m.CheckErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[strings.ToLower(email)]
	if !ok {
		return "", false, nil
	}
	return e.Reason, true, nil
}

func (m *MockStore) Add(_ context.Context, email string, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := m.entries[key]; ok {
		return nil
	}
	m.entries[key] = Entry{Email: key, Reason: reason, CreatedAt: time.Now().UTC()}
	return nil
}

var _ Store = (*MockStore)(nil)
