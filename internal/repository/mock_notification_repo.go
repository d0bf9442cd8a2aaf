package repository

import (
	"context"
	"sync"

	"github.com/notifyhub/broadcast/internal/domain"
)

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
//
// It also implements TxManager: WithinTx serializes callers on a dedicated
// mutex, which models the row-lock behaviour closely enough for the
// concurrent-cancel tests.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	txMu          sync.Mutex
	notifications map[string]*domain.Notification

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr        error
	GetByIDErr       error
	UpdateContentErr error
	UpdateStatusErr  error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make(map[string]*domain.Notification),
	}
}

func (m *MockNotificationRepository) WithinTx(_ context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(context.Background())
}

func (m *MockNotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MockNotificationRepository) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MockNotificationRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Notification, error) {
	return m.GetByID(ctx, id)
}

func (m *MockNotificationRepository) UpdateContent(_ context.Context, n *domain.Notification) error {
	if m.UpdateContentErr != nil {
		return m.UpdateContentErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.notifications[n.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Title = n.Title
	existing.Subject = n.Subject
	existing.BodyText = n.BodyText
	existing.BodyHTML = n.BodyHTML
	existing.SendAt = n.SendAt
	return nil
}

func (m *MockNotificationRepository) UpdateStatus(_ context.Context, id string, status domain.NotificationStatus) error {
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = status
	return nil
}

func (m *MockNotificationRepository) List(_ context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if f.Status != nil && n.Status != *f.Status {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *MockNotificationRepository) FindDue(_ context.Context, limit int) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.Status != domain.NotificationScheduled {
			continue
		}
		cp := *n
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

var (
	_ NotificationRepository = (*MockNotificationRepository)(nil)
	_ TxManager              = (*MockNotificationRepository)(nil)
)
