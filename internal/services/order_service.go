package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

// OrderService owns the order state machine:
//
//	PENDING -> PAID | FAILED | CANCELLED
//
// All three destinations are terminal. Every transition is a compare-and-set
// against PENDING at the store, and subscribers hear about it only after the
// store reports the write committed.
type OrderService struct {
	store     repository.OrderStore
	notifier  Notifier
	scheduler DeliveryScheduler
	now       func() time.Time
}

// DeliveryScheduler books a drop-off for an order once it has been stored.
type DeliveryScheduler interface {
	ScheduleForOrder(ctx context.Context, order *models.Order) (*models.Delivery, error)
}

// NewOrderService constructs an OrderService. notifier may be nil.
func NewOrderService(store repository.OrderStore, notifier Notifier) *OrderService {
	return &OrderService{store: store, notifier: notifier, now: time.Now}
}

// SetDeliveryScheduler installs the scheduler used after checkout and after
// each recurring spawn.
func (s *OrderService) SetDeliveryScheduler(scheduler DeliveryScheduler) {
	s.scheduler = scheduler
}

// OrderItemInput is one requested meal-kit line.
type OrderItemInput struct {
	KitID     string
	KitName   string
	Quantity  int
	UnitPrice decimal.Decimal
}

// RecurrenceInput turns an order into a recurring subscription.
type RecurrenceInput struct {
	Frequency             models.RecurringFrequency
	PreferredDeliveryTime string
}

// CreateOrderInput describes a new order. A zero TotalAmount is replaced by
// the sum of the line totals. A delivery is booked when both DeliveryAddress
// and a preferred time are given.
type CreateOrderInput struct {
	UserID                  uuid.UUID
	Items                   []OrderItemInput
	TotalAmount             decimal.Decimal
	Currency                string
	Notes                   string
	DeliveryAddress         string
	PreferredDeliveryTime   string
	RequiresPaymentMatching bool
	Recurrence              *RecurrenceInput
}

// StatusUpdate asks for a transition out of PENDING.
type StatusUpdate struct {
	OrderID  uuid.UUID
	Status   models.OrderStatus
	Source   string
	Metadata map[string]any
}

// NewCorrelationToken returns a fresh 32-character lowercase hex token.
func NewCorrelationToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PaymentMemo is the transfer description a customer must use so the bank
// webhook can be matched back to the order.
func PaymentMemo(token string) string {
	return "PAY " + token
}

// CreateOrder validates input and persists a new PENDING order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidOrder)
	}

	if err := validDeliveryTime(in.PreferredDeliveryTime); err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:                in.UserID,
		Status:                models.OrderStatusPending,
		Currency:              in.Currency,
		Notes:                 in.Notes,
		DeliveryAddress:       strings.TrimSpace(in.DeliveryAddress),
		PreferredDeliveryTime: in.PreferredDeliveryTime,
	}
	if order.Currency == "" {
		order.Currency = "VND"
	}

	subtotal := decimal.Zero
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for kit %q", ErrInvalidOrder, item.KitID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: negative price for kit %q", ErrInvalidOrder, item.KitID)
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		order.Items = append(order.Items, models.OrderItem{
			KitID:     item.KitID,
			KitName:   item.KitName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
	}

	order.TotalAmount = in.TotalAmount
	if order.TotalAmount.IsZero() {
		order.TotalAmount = subtotal
	}
	if !order.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidOrder)
	}

	if in.RequiresPaymentMatching {
		token := NewCorrelationToken()
		order.CorrelationToken = &token
	}

	if in.Recurrence != nil {
		if err := applyRecurrence(order, *in.Recurrence, s.now()); err != nil {
			return nil, err
		}
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, &PersistenceError{Op: "create order", Err: err}
	}

	log.Printf("[Order] created order %s for user %s, total %s %s", order.ID, order.UserID, order.TotalAmount, order.Currency)
	s.scheduleDelivery(ctx, order)
	return order, nil
}

// scheduleDelivery runs after the order is stored. A failure is logged and
// never undoes the order.
func (s *OrderService) scheduleDelivery(ctx context.Context, order *models.Order) {
	if s.scheduler == nil {
		return
	}
	if _, err := s.scheduler.ScheduleForOrder(ctx, order); err != nil {
		log.Printf("[Order] scheduling delivery for order %s failed: %v", order.ID, err)
	}
}

func validDeliveryTime(hhmm string) error {
	if hhmm == "" {
		return nil
	}
	if _, err := time.Parse("15:04", hhmm); err != nil {
		return fmt.Errorf("%w: preferred delivery time must be HH:MM", ErrInvalidOrder)
	}
	return nil
}

func applyRecurrence(order *models.Order, in RecurrenceInput, now time.Time) error {
	if !in.Frequency.Valid() {
		return fmt.Errorf("%w: unknown recurring frequency %q", ErrInvalidOrder, in.Frequency)
	}
	if err := validDeliveryTime(in.PreferredDeliveryTime); err != nil {
		return err
	}

	next := in.Frequency.Next(now)
	order.IsRecurring = true
	order.RecurringFrequency = in.Frequency
	if in.PreferredDeliveryTime != "" {
		order.PreferredDeliveryTime = in.PreferredDeliveryTime
	}
	order.NextDeliveryDate = &next
	return nil
}

// GetOrder loads an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.store.FindByID(ctx, id)
}

// ListOrders returns one page of a user's orders and the total count.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]models.Order, int64, error) {
	return s.store.ListByUser(ctx, filter)
}

// StatusHistory returns an order's recorded events, oldest first.
func (s *OrderService) StatusHistory(ctx context.Context, id uuid.UUID) ([]models.OrderEvent, error) {
	return s.store.ListEvents(ctx, id)
}

// UpdateStatus moves a PENDING order to u.Status and then publishes the
// change. It returns a *TransitionError when the order is not PENDING, or
// stopped being PENDING before the write landed.
func (s *OrderService) UpdateStatus(ctx context.Context, u StatusUpdate) (*models.Order, error) {
	order, err := s.store.FindByID(ctx, u.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load order", Err: err}
	}

	if !u.Status.Terminal() || order.Status != models.OrderStatusPending {
		return nil, &TransitionError{OrderID: order.ID, From: order.Status, To: u.Status}
	}

	swapped, err := s.store.CompareAndSetStatus(ctx, repository.Transition{
		OrderID:  order.ID,
		Expected: models.OrderStatusPending,
		Next:     u.Status,
		Source:   u.Source,
		Metadata: u.Metadata,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "update order status", Err: err}
	}
	if !swapped {
		from := order.Status
		if current, err := s.store.FindByID(ctx, order.ID); err == nil {
			from = current.Status
		}
		return nil, &TransitionError{OrderID: order.ID, From: from, To: u.Status}
	}

	previous := order.Status
	order.Status = u.Status
	order.UpdatedAt = s.now()
	log.Printf("[Order] order %s moved %s -> %s (%s)", order.ID, previous, order.Status, u.Source)

	if s.notifier != nil {
		s.notifier.Publish(ctx, StatusChange{
			OrderID:     order.ID,
			Status:      order.Status,
			Previous:    previous,
			Source:      u.Source,
			TotalAmount: order.TotalAmount,
			Currency:    order.Currency,
			Timestamp:   order.UpdatedAt.UnixMilli(),
		})
	}
	return order, nil
}

// CancelOrder lets the owner of a PENDING order cancel it.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}

	return s.UpdateStatus(ctx, StatusUpdate{
		OrderID: orderID,
		Status:  models.OrderStatusCancelled,
		Source:  models.EventSourceCustomer,
	})
}

// SpawnRecurringInstances creates the next one-time order for every recurring
// order due by the end of now's day. Failures are collected and do not stop
// the remaining parents.
func (s *OrderService) SpawnRecurringInstances(ctx context.Context, now time.Time) (int, error) {
	y, m, d := now.Date()
	endOfDay := time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), now.Location())

	due, err := s.store.FindRecurringDue(ctx, endOfDay)
	if err != nil {
		return 0, &PersistenceError{Op: "find recurring orders", Err: err}
	}

	var (
		spawned int
		errs    []error
	)
	for i := range due {
		parent := &due[i]
		dueDate := *parent.NextDeliveryDate
		child := recurringInstance(parent, dueDate)
		next := parent.RecurringFrequency.Next(dueDate)

		ok, err := s.store.SpawnRecurring(ctx, parent.ID, parent.RecurrenceSeq, next, child)
		if err != nil {
			log.Printf("[Recurring] spawning from order %s failed: %v", parent.ID, err)
			errs = append(errs, fmt.Errorf("order %s: %w", parent.ID, err))
			continue
		}
		if !ok {
			log.Printf("[Recurring] order %s already spawned by another worker", parent.ID)
			continue
		}

		spawned++
		log.Printf("[Recurring] order %s spawned %s, next delivery %s", parent.ID, child.ID, next.Format(time.DateOnly))
		s.scheduleDelivery(ctx, child)
	}

	if len(errs) > 0 {
		return spawned, &PersistenceError{Op: "spawn recurring orders", Err: errors.Join(errs...)}
	}
	return spawned, nil
}

// recurringInstance builds the one-time order for the parent's due date. The
// child carries that date so its delivery lands on it.
func recurringInstance(parent *models.Order, dueDate time.Time) *models.Order {
	parentID := parent.ID
	child := &models.Order{
		UserID:                parent.UserID,
		Status:                models.OrderStatusPending,
		TotalAmount:           parent.TotalAmount,
		Currency:              parent.Currency,
		Notes:                 parent.Notes,
		DeliveryAddress:       parent.DeliveryAddress,
		PreferredDeliveryTime: parent.PreferredDeliveryTime,
		NextDeliveryDate:      &dueDate,
		ParentOrderID:         &parentID,
	}
	if parent.CorrelationToken != nil {
		token := NewCorrelationToken()
		child.CorrelationToken = &token
	}
	for _, item := range parent.Items {
		child.Items = append(child.Items, models.OrderItem{
			KitID:     item.KitID,
			KitName:   item.KitName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return child
}
