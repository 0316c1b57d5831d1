package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

// recordingNotifier collects every published change.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (r *recordingNotifier) Publish(_ context.Context, change StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingNotifier) Changes() []StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusChange(nil), r.changes...)
}

// flakyStore fails selected operations of an otherwise working store.
type flakyStore struct {
	repository.OrderStore
	failCAS    bool
	failLookup bool
}

var errStoreDown = errors.New("connection refused")

func (f *flakyStore) CompareAndSetStatus(ctx context.Context, t repository.Transition) (bool, error) {
	if f.failCAS {
		return false, errStoreDown
	}
	return f.OrderStore.CompareAndSetStatus(ctx, t)
}

func (f *flakyStore) FindByCorrelationToken(ctx context.Context, token string) (*models.Order, error) {
	if f.failLookup {
		return nil, errStoreDown
	}
	return f.OrderStore.FindByCorrelationToken(ctx, token)
}

func seedOrder(t *testing.T, store repository.OrderStore, token string, status models.OrderStatus, total int64) *models.Order {
	t.Helper()

	order := &models.Order{
		UserID:      uuid.New(),
		Status:      status,
		TotalAmount: decimal.NewFromInt(total),
		Currency:    "VND",
	}
	if token != "" {
		order.CorrelationToken = &token
	}
	require.NoError(t, store.Create(context.Background(), order))
	return order
}

func orderStatus(t *testing.T, store repository.OrderStore, id uuid.UUID) models.OrderStatus {
	t.Helper()

	order, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func newTestServices(store repository.OrderStore, verifyAmount bool) (*OrderService, *WebhookService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	orders := NewOrderService(store, notifier)
	return orders, NewWebhookService(store, orders, verifyAmount), notifier
}
