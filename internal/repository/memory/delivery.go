package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

func (s *OrderStore) CreateDelivery(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byOrder[delivery.OrderID]; taken {
		return ErrDuplicateDelivery
	}

	delivery.EnsureID()
	now := s.now()
	delivery.CreatedAt = now
	delivery.UpdatedAt = now

	cp := cloneDelivery(delivery)
	s.deliveries[cp.ID] = cp
	s.byOrder[cp.OrderID] = cp.ID
	return nil
}

func (s *OrderStore) FindDelivery(_ context.Context, id uuid.UUID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivery, ok := s.deliveries[id]
	if !ok {
		return nil, repository.ErrDeliveryNotFound
	}
	return cloneDelivery(delivery), nil
}

func (s *OrderStore) FindDeliveryByOrder(_ context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, repository.ErrDeliveryNotFound
	}
	return cloneDelivery(s.deliveries[id]), nil
}

func (s *OrderStore) ListDeliveries(_ context.Context, filter repository.DeliveryFilter) ([]models.Delivery, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Delivery
	for _, d := range s.deliveries {
		if filter.UserID != uuid.Nil && d.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		matched = append(matched, *cloneDelivery(d))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScheduledTime.Before(matched[j].ScheduledTime)
	})

	total := int64(len(matched))
	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func (s *OrderStore) CompareAndSetDeliveryStatus(_ context.Context, id uuid.UUID, expected, next models.DeliveryStatus, deliveredAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, ok := s.deliveries[id]
	if !ok || delivery.Status != expected {
		return false, nil
	}

	delivery.Status = next
	if deliveredAt != nil {
		at := *deliveredAt
		delivery.DeliveredTime = &at
	}
	delivery.UpdatedAt = s.now()
	return true, nil
}

func cloneDelivery(d *models.Delivery) *models.Delivery {
	cp := *d
	if d.DeliveredTime != nil {
		at := *d.DeliveredTime
		cp.DeliveredTime = &at
	}
	return &cp
}
