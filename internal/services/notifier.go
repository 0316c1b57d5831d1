package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/models"
)

// StatusChange is published once per committed order status transition.
type StatusChange struct {
	OrderID     uuid.UUID          `json:"orderId"`
	Status      models.OrderStatus `json:"status"`
	Previous    models.OrderStatus `json:"previous,omitempty"`
	Source      string             `json:"source,omitempty"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
	Currency    string             `json:"currency,omitempty"`
	Timestamp   int64              `json:"timestamp"`
}

// Subscriber receives status changes. Notify must not block for long; slow
// work belongs on the subscriber's own goroutine.
type Subscriber interface {
	Notify(ctx context.Context, change StatusChange) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, change StatusChange) error

func (f SubscriberFunc) Notify(ctx context.Context, change StatusChange) error {
	return f(ctx, change)
}

// Notifier is what the order lifecycle calls after a transition commits.
type Notifier interface {
	Publish(ctx context.Context, change StatusChange)
}

// NotificationHub fans a status change out to every registered subscriber.
// Delivery is best effort: subscriber errors and panics are logged and never
// reach the publisher.
type NotificationHub struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewNotificationHub constructs a hub with the given subscribers.
func NewNotificationHub(subscribers ...Subscriber) *NotificationHub {
	return &NotificationHub{subscribers: subscribers}
}

// Subscribe registers another subscriber.
func (h *NotificationHub) Subscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subscribers = append(h.subscribers, s)
}

// Publish delivers change to all subscribers in registration order.
func (h *NotificationHub) Publish(ctx context.Context, change StatusChange) {
	if change.Timestamp == 0 {
		change.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	subscribers := append([]Subscriber(nil), h.subscribers...)
	h.mu.RUnlock()

	log.Printf("[Notifier] order %s -> %s (%d subscribers)", change.OrderID, change.Status, len(subscribers))
	for _, s := range subscribers {
		deliver(ctx, s, change)
	}
}

func deliver(ctx context.Context, s Subscriber, change StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Notifier] subscriber panicked for order %s: %v", change.OrderID, r)
		}
	}()

	if err := s.Notify(ctx, change); err != nil {
		log.Printf("[Notifier] delivery failed for order %s: %v", change.OrderID, err)
	}
}
