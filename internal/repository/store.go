// Package repository persists orders and their status history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/models"
)

// ErrOrderNotFound is returned when no order matches a lookup.
var ErrOrderNotFound = errors.New("order not found")

// Transition describes a guarded status change.
type Transition struct {
	OrderID  uuid.UUID
	Expected models.OrderStatus
	Next     models.OrderStatus
	Source   string
	Metadata map[string]any
}

// OrderFilter narrows ListByUser.
type OrderFilter struct {
	UserID uuid.UUID
	Status models.OrderStatus
	Limit  int
	Offset int
}

// OrderStore is the persistence boundary of the order lifecycle.
//
// CompareAndSetStatus is the only way an order status changes: it applies
// the transition if and only if the stored status equals t.Expected, as one
// atomic step, and reports whether it did. A false result with a nil error
// means another writer got there first or the order does not exist.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByCorrelationToken(ctx context.Context, token string) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, t Transition) (bool, error)
	ListByUser(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)

	// FindRecurringDue returns recurring parents that are not cancelled or
	// failed and whose next delivery date is at or before until.
	FindRecurringDue(ctx context.Context, until time.Time) ([]models.Order, error)
	// SpawnRecurring advances the parent's schedule to next and creates child,
	// provided the parent's recurrence sequence still equals seq. It reports
	// false when another worker already spawned this occurrence.
	SpawnRecurring(ctx context.Context, parentID uuid.UUID, seq int, next time.Time, child *models.Order) (bool, error)
}

// ErrDeliveryNotFound is returned when no delivery matches a lookup.
var ErrDeliveryNotFound = errors.New("delivery not found")

// DeliveryStore persists scheduled deliveries. An order has at most one.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	FindDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	FindDeliveryByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.Delivery, int64, error)
	// CompareAndSetDeliveryStatus moves a delivery from expected to next in
	// one step and reports whether it did. deliveredAt is stored when set.
	CompareAndSetDeliveryStatus(ctx context.Context, id uuid.UUID, expected, next models.DeliveryStatus, deliveredAt *time.Time) (bool, error)
}

// DeliveryFilter narrows ListDeliveries. A zero UserID lists every user.
type DeliveryFilter struct {
	UserID uuid.UUID
	Status models.DeliveryStatus
	Limit  int
	Offset int
}
