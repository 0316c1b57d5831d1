package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

// ErrInvalidDelivery rejects a delivery status change.
var ErrInvalidDelivery = errors.New("invalid delivery update")

// DeliveryService books drop-offs for orders and tracks them to completion.
// It also listens for order status changes so a cancelled or failed order
// does not keep a pending delivery.
type DeliveryService struct {
	store repository.DeliveryStore
	now   func() time.Time
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(store repository.DeliveryStore) *DeliveryService {
	return &DeliveryService{store: store, now: time.Now}
}

// ScheduleForOrder books a PENDING delivery for order. Orders without an
// address or a preferred time get none, and the returned delivery is nil.
func (s *DeliveryService) ScheduleForOrder(ctx context.Context, order *models.Order) (*models.Delivery, error) {
	address := strings.TrimSpace(order.DeliveryAddress)
	if address == "" || order.PreferredDeliveryTime == "" {
		return nil, nil
	}

	at, err := s.scheduledTime(order)
	if err != nil {
		return nil, err
	}

	delivery := &models.Delivery{
		OrderID:       order.ID,
		UserID:        order.UserID,
		ScheduledTime: at,
		Status:        models.DeliveryStatusPending,
		Address:       address,
	}
	if err := s.store.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}

	log.Printf("[Delivery] scheduled delivery %s for order %s at %s", delivery.ID, order.ID, at.Format(time.RFC3339))
	return delivery, nil
}

// scheduledTime puts the preferred HH:MM on tomorrow. A spawned instance
// carries its due date in NextDeliveryDate and is delivered on that day
// instead. A recurring parent is its own first box, so its NextDeliveryDate
// belongs to the next spawn and is ignored here.
func (s *DeliveryService) scheduledTime(order *models.Order) (time.Time, error) {
	clock, err := time.Parse("15:04", order.PreferredDeliveryTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: preferred delivery time must be HH:MM", ErrInvalidOrder)
	}

	day := s.now().AddDate(0, 0, 1)
	if !order.IsRecurring && order.NextDeliveryDate != nil {
		day = *order.NextDeliveryDate
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

// Get loads a delivery by id.
func (s *DeliveryService) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	return s.store.FindDelivery(ctx, id)
}

// ForOrder loads the delivery booked for an order.
func (s *DeliveryService) ForOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	return s.store.FindDeliveryByOrder(ctx, orderID)
}

// List returns one page of deliveries, soonest first.
func (s *DeliveryService) List(ctx context.Context, filter repository.DeliveryFilter) ([]models.Delivery, int64, error) {
	return s.store.ListDeliveries(ctx, filter)
}

// UpdateStatus moves a delivery to next. Finished deliveries never change,
// and a DELIVERED delivery records when it arrived.
func (s *DeliveryService) UpdateStatus(ctx context.Context, id uuid.UUID, next models.DeliveryStatus) (*models.Delivery, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidDelivery, next)
	}

	delivery, err := s.store.FindDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	if delivery.Status.Terminal() {
		return nil, fmt.Errorf("%w: delivery is already %s", ErrInvalidDelivery, delivery.Status)
	}
	if delivery.Status == next {
		return delivery, nil
	}

	var deliveredAt *time.Time
	if next == models.DeliveryStatusDelivered {
		at := s.now()
		deliveredAt = &at
	}

	swapped, err := s.store.CompareAndSetDeliveryStatus(ctx, id, delivery.Status, next, deliveredAt)
	if err != nil {
		return nil, &PersistenceError{Op: "update delivery status", Err: err}
	}
	if !swapped {
		return nil, fmt.Errorf("%w: delivery changed concurrently", ErrInvalidDelivery)
	}

	log.Printf("[Delivery] delivery %s moved %s -> %s", id, delivery.Status, next)
	delivery.Status = next
	delivery.DeliveredTime = deliveredAt
	return delivery, nil
}

// Notify cancels the pending delivery of an order that was cancelled or
// failed. Paid orders keep theirs.
func (s *DeliveryService) Notify(ctx context.Context, change StatusChange) error {
	if change.Status != models.OrderStatusCancelled && change.Status != models.OrderStatusFailed {
		return nil
	}

	delivery, err := s.store.FindDeliveryByOrder(ctx, change.OrderID)
	if errors.Is(err, repository.ErrDeliveryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if delivery.Status != models.DeliveryStatusPending {
		return nil
	}

	swapped, err := s.store.CompareAndSetDeliveryStatus(ctx, delivery.ID, models.DeliveryStatusPending, models.DeliveryStatusCancelled, nil)
	if err != nil {
		return err
	}
	if swapped {
		log.Printf("[Delivery] cancelled delivery %s, order %s is %s", delivery.ID, change.OrderID, change.Status)
	}
	return nil
}
