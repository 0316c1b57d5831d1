// Package memory provides an in-process repository.OrderStore and
// repository.DeliveryStore. Every method runs under one mutex, so the
// compare-and-set methods are as atomic as the SQL conditional updates they
// stand in for.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

var (
	// ErrDuplicateToken mirrors the unique index on correlation tokens.
	ErrDuplicateToken = errors.New("correlation token already in use")
	// ErrDuplicateDelivery mirrors the unique index on deliveries.order_id.
	ErrDuplicateDelivery = errors.New("order already has a delivery")
)

type OrderStore struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*models.Order
	byToken map[string]uuid.UUID
	events  map[uuid.UUID][]models.OrderEvent

	deliveries map[uuid.UUID]*models.Delivery
	byOrder    map[uuid.UUID]uuid.UUID

	now func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[uuid.UUID]*models.Order),
		byToken: make(map[string]uuid.UUID),
		events:  make(map[uuid.UUID][]models.OrderEvent),

		deliveries: make(map[uuid.UUID]*models.Delivery),
		byOrder:    make(map[uuid.UUID]uuid.UUID),

		now: time.Now,
	}
}

var (
	_ repository.OrderStore    = (*OrderStore)(nil)
	_ repository.DeliveryStore = (*OrderStore)(nil)
)

func (s *OrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(order, models.EventSourceCheckout)
}

func (s *OrderStore) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return clone(order), nil
}

func (s *OrderStore) FindByCorrelationToken(_ context.Context, token string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return clone(s.orders[id]), nil
}

func (s *OrderStore) CompareAndSetStatus(_ context.Context, t repository.Transition) (bool, error) {
	var metadata []byte
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return false, err
		}
		metadata = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[t.OrderID]
	if !ok || order.Status != t.Expected {
		return false, nil
	}

	now := s.now()
	order.Status = t.Next
	order.UpdatedAt = now
	s.appendEventLocked(models.OrderEvent{
		OrderID:    t.OrderID,
		FromStatus: t.Expected,
		ToStatus:   t.Next,
		Source:     t.Source,
		Metadata:   metadata,
	})
	return true, nil
}

func (s *OrderStore) ListByUser(_ context.Context, filter repository.OrderFilter) ([]models.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Order
	for _, order := range s.orders {
		if order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, *clone(order))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := min(filter.Offset, len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}
	return matched[start:end], total, nil
}

func (s *OrderStore) ListEvents(_ context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.OrderEvent(nil), s.events[orderID]...), nil
}

func (s *OrderStore) FindRecurringDue(_ context.Context, until time.Time) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.Order
	for _, order := range s.orders {
		if !order.IsRecurring || order.NextDeliveryDate == nil || order.NextDeliveryDate.After(until) {
			continue
		}
		if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusFailed {
			continue
		}
		due = append(due, *clone(order))
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDeliveryDate.Before(*due[j].NextDeliveryDate)
	})
	return due, nil
}

func (s *OrderStore) SpawnRecurring(_ context.Context, parentID uuid.UUID, seq int, next time.Time, child *models.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.orders[parentID]
	if !ok || parent.RecurrenceSeq != seq {
		return false, nil
	}
	if err := s.insertLocked(child, models.EventSourceRecurring); err != nil {
		return false, err
	}
	parent.NextDeliveryDate = &next
	parent.RecurrenceSeq = seq + 1
	parent.UpdatedAt = s.now()
	return true, nil
}

func (s *OrderStore) insertLocked(order *models.Order, source string) error {
	if err := order.BeforeCreate(nil); err != nil {
		return err
	}
	if _, exists := s.orders[order.ID]; exists {
		return errors.New("order already exists")
	}
	if order.CorrelationToken != nil {
		if _, taken := s.byToken[*order.CorrelationToken]; taken {
			return ErrDuplicateToken
		}
	}

	now := s.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].EnsureID()
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
		order.Items[i].UpdatedAt = now
	}

	s.orders[order.ID] = clone(order)
	if order.CorrelationToken != nil {
		s.byToken[*order.CorrelationToken] = order.ID
	}
	s.appendEventLocked(models.OrderEvent{
		OrderID:  order.ID,
		ToStatus: order.Status,
		Source:   source,
	})
	return nil
}

func (s *OrderStore) appendEventLocked(evt models.OrderEvent) {
	evt.EnsureID()
	evt.CreatedAt = s.now()
	evt.UpdatedAt = evt.CreatedAt
	s.events[evt.OrderID] = append(s.events[evt.OrderID], evt)
}

func clone(order *models.Order) *models.Order {
	cp := *order
	cp.Items = append([]models.OrderItem(nil), order.Items...)
	if order.CorrelationToken != nil {
		token := *order.CorrelationToken
		cp.CorrelationToken = &token
	}
	if order.NextDeliveryDate != nil {
		next := *order.NextDeliveryDate
		cp.NextDeliveryDate = &next
	}
	if order.ParentOrderID != nil {
		parent := *order.ParentOrderID
		cp.ParentOrderID = &parent
	}
	return &cp
}
