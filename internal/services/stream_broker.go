package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const streamBufferSize = 16

// StreamBroker keeps live listeners for order status changes: one topic per
// order and one topic for all payments. A listener that falls behind loses
// messages rather than holding up publication.
type StreamBroker struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]chan StatusChange
}

// NewStreamBroker constructs an empty broker.
func NewStreamBroker() *StreamBroker {
	return &StreamBroker{topics: make(map[string]map[uint64]chan StatusChange)}
}

// PaymentsTopic carries every status change.
const PaymentsTopic = "payments"

// OrderTopic names the topic for a single order.
func OrderTopic(orderID uuid.UUID) string {
	return "payment/" + orderID.String()
}

// Subscribe returns a channel for topic and a cancel func that closes it.
func (b *StreamBroker) Subscribe(topic string) (<-chan StatusChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan StatusChange, streamBufferSize)

	listeners, ok := b.topics[topic]
	if !ok {
		listeners = make(map[uint64]chan StatusChange)
		b.topics[topic] = listeners
	}
	listeners[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.topics[topic], id)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Listeners reports how many listeners a topic has.
func (b *StreamBroker) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.topics[topic])
}

// Notify implements Subscriber.
func (b *StreamBroker) Notify(_ context.Context, change StatusChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range []string{OrderTopic(change.OrderID), PaymentsTopic} {
		for _, ch := range b.topics[topic] {
			select {
			case ch <- change:
			default:
			}
		}
	}
	return nil
}
