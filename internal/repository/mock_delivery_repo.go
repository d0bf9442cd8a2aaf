package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/notifyhub/broadcast/internal/domain"
)

// MockDeliveryRepository is an in-memory DeliveryRepository for unit tests.
// It enforces the same invariants as the PostgreSQL implementation:
// insert-ignore on (notification_id, user_id) and monotonic status updates.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*domain.Delivery        // by id
	byKey      map[string]string                  // (notificationID, userID) -> id
	nextID     int

	BulkInsertErr   error
	UpdateResultErr error
}

func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{
		deliveries: make(map[string]*domain.Delivery),
		byKey:      make(map[string]string),
	}
}

func deliveryKey(notificationID, userID string) string {
	return notificationID + "/" + userID
}

func (m *MockDeliveryRepository) BulkInsertIgnore(_ context.Context, deliveries []*domain.Delivery) (int, error) {
	if m.BulkInsertErr != nil {
		return 0, m.BulkInsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, d := range deliveries {
		key := deliveryKey(d.NotificationID, d.UserID)
		if _, exists := m.byKey[key]; exists {
			continue // existing row left untouched
		}
		m.nextID++
		cp := *d
		cp.ID = fmt.Sprintf("delivery-%d", m.nextID)
		d.ID = cp.ID
		m.deliveries[cp.ID] = &cp
		m.byKey[key] = cp.ID
		inserted++
	}
	return inserted, nil
}

func (m *MockDeliveryRepository) GetByID(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, domain.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockDeliveryRepository) FindByBatchID(_ context.Context, notificationID, batchID string) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Delivery
	for _, d := range m.deliveries {
		if d.NotificationID == notificationID && d.BatchID == batchID {
			cp := *d
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockDeliveryRepository) FindPendingByBatchID(_ context.Context, notificationID, batchID string) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Delivery
	for _, d := range m.deliveries {
		if d.NotificationID == notificationID && d.BatchID == batchID && d.Status == domain.DeliveryPending {
			cp := *d
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockDeliveryRepository) BulkUpdateStatus(_ context.Context, ids []string, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		d, ok := m.deliveries[id]
		if !ok || d.Status.IsTerminal() {
			continue
		}
		d.Status = status
		d.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockDeliveryRepository) ClaimPending(_ context.Context, notificationID string) ([]*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*domain.Delivery
	for _, d := range m.deliveries {
		if d.NotificationID != notificationID || d.Status != domain.DeliveryPending {
			continue
		}
		d.Status = domain.DeliverySending
		d.UpdatedAt = time.Now().UTC()
		cp := *d
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *MockDeliveryRepository) MarkSending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok || d.Status.IsTerminal() {
		return domain.ErrDeliveryNotFound
	}
	d.MarkSending()
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockDeliveryRepository) UpdateDeliveryResult(_ context.Context, id string, result domain.DeliveryResult) error {
	if m.UpdateResultErr != nil {
		return m.UpdateResultErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok || d.Status.IsTerminal() {
		return domain.ErrDeliveryNotFound
	}
	d.Status = result.Status
	if result.SESMessageID != nil {
		d.SESMessageID = result.SESMessageID
	}
	d.LastError = result.LastError
	if result.SentAt != nil {
		d.SentAt = result.SentAt
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockDeliveryRepository) UpdateResultByMessageID(_ context.Context, sesMessageID string, status domain.DeliveryStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.SESMessageID != nil && *d.SESMessageID == sesMessageID && d.Status == domain.DeliverySent {
			d.Status = status
			d.LastError = &reason
			d.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.ErrDeliveryNotFound
}

func (m *MockDeliveryRepository) FindRetrying(_ context.Context, notificationID string, olderThan time.Time, limit int) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Delivery
	for _, d := range m.deliveries {
		if d.NotificationID != notificationID || d.Status != domain.DeliveryRetrying {
			continue
		}
		if d.UpdatedAt.After(olderThan) {
			continue
		}
		cp := *d
		result = append(result, &cp)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockDeliveryRepository) CountByStatus(_ context.Context, notificationID string) (map[domain.DeliveryStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	histogram := make(map[domain.DeliveryStatus]int)
	for _, d := range m.deliveries {
		if d.NotificationID == notificationID {
			histogram[d.Status]++
		}
	}
	return histogram, nil
}

var _ DeliveryRepository = (*MockDeliveryRepository)(nil)
