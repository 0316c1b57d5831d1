package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository/memory"
)

const scenarioToken = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"

func scenarioBatch() []InboundTransaction {
	return []InboundTransaction{{
		Description: "PAY " + scenarioToken + " Ma giao dich Trace001",
		Amount:      decimal.NewFromInt(50000),
	}}
}

func TestReconcile_MarksMatchingOrderPaid(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, notifier := newTestServices(store, false)
	order := seedOrder(t, store, scenarioToken, models.OrderStatusPending, 50000)

	report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Received: 1, Paid: 1}, report)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, order.ID))

	changes := notifier.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, order.ID, changes[0].OrderID)
	assert.Equal(t, models.OrderStatusPaid, changes[0].Status)
	assert.Equal(t, models.OrderStatusPending, changes[0].Previous)
	assert.Equal(t, models.EventSourceWebhook, changes[0].Source)

	events, err := store.ListEvents(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.OrderStatusPaid, events[1].ToStatus)
	assert.JSONEq(t, `{"amount":"50000","description":"PAY `+scenarioToken+` Ma giao dich Trace001"}`, string(events[1].Metadata))
}

func TestReconcile_ReplayIsNoop(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, notifier := newTestServices(store, false)
	order := seedOrder(t, store, scenarioToken, models.OrderStatusPending, 50000)

	_, err := webhooks.Reconcile(context.Background(), scenarioBatch())
	require.NoError(t, err)

	report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Received: 1, Skipped: 1}, report)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, order.ID))
	assert.Len(t, notifier.Changes(), 1)

	events, err := store.ListEvents(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestReconcile_EmptyAndMissingBatch(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, notifier := newTestServices(store, false)

	report, err := webhooks.Reconcile(context.Background(), []InboundTransaction{})
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)

	_, err = webhooks.Reconcile(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMalformedBatch)
	assert.Empty(t, notifier.Changes())
}

func TestReconcile_TerminalOrdersNeverBecomePaid(t *testing.T) {
	for _, status := range []models.OrderStatus{models.OrderStatusFailed, models.OrderStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			store := memory.NewOrderStore()
			_, webhooks, notifier := newTestServices(store, false)
			order := seedOrder(t, store, scenarioToken, status, 50000)

			report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
			require.NoError(t, err)

			assert.Equal(t, 1, report.Skipped)
			assert.Equal(t, status, orderStatus(t, store, order.ID))
			assert.Empty(t, notifier.Changes())
		})
	}
}

func TestReconcile_ItemsAreIndependent(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, _ := newTestServices(store, false)

	first := seedOrder(t, store, "11111111111111111111111111111111", models.OrderStatusPending, 10000)
	second := seedOrder(t, store, "22222222222222222222222222222222", models.OrderStatusPending, 20000)

	batch := []InboundTransaction{
		{Description: "no token here", Amount: decimal.NewFromInt(1)},
		{Description: "PAY 11111111111111111111111111111111 Ma giao dich T1", Amount: decimal.NewFromInt(10000)},
		{Description: "CK ffffffffffffffffffffffffffffffff", Amount: decimal.NewFromInt(5)},
		{Description: "Thanh toan 22222222-2222-2222-2222-222222222222", Amount: decimal.NewFromInt(20000)},
	}

	report, err := webhooks.Reconcile(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, ReconcileReport{Received: 4, Paid: 2, Skipped: 2}, report)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, first.ID))
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, second.ID))
}

func TestReconcile_UppercaseTokenMatches(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, _ := newTestServices(store, false)
	order := seedOrder(t, store, scenarioToken, models.OrderStatusPending, 50000)

	_, err := webhooks.Reconcile(context.Background(), []InboundTransaction{{
		Description: "PAY A1B2C3D4E5F6A1B2C3D4E5F6A1B2C3D4 MA GIAO DICH X",
	}})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, order.ID))
}

func TestReconcile_ConcurrentDeliveriesPayOnce(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, notifier := newTestServices(store, false)
	order := seedOrder(t, store, scenarioToken, models.OrderStatusPending, 50000)

	const workers = 16
	reports := make([]ReconcileReport, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	close(start)
	wg.Wait()

	paid := 0
	for _, r := range reports {
		paid += r.Paid
	}
	assert.Equal(t, 1, paid)
	assert.Len(t, notifier.Changes(), 1)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, order.ID))

	events, err := store.ListEvents(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestReconcile_AmountVerification(t *testing.T) {
	store := memory.NewOrderStore()
	_, webhooks, notifier := newTestServices(store, true)
	order := seedOrder(t, store, scenarioToken, models.OrderStatusPending, 60000)

	report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Received: 1, Skipped: 1}, report)
	assert.Equal(t, models.OrderStatusPending, orderStatus(t, store, order.ID))
	assert.Empty(t, notifier.Changes())

	report, err = webhooks.Reconcile(context.Background(), []InboundTransaction{{
		Description: "PAY " + scenarioToken + " Ma giao dich Trace002",
		Amount:      decimal.NewFromInt(60000),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, store, order.ID))
}

func TestReconcile_PersistenceFailure(t *testing.T) {
	base := memory.NewOrderStore()
	store := &flakyStore{OrderStore: base, failCAS: true}
	_, webhooks, notifier := newTestServices(store, false)

	paidLater := seedOrder(t, base, scenarioToken, models.OrderStatusPending, 50000)

	batch := append(scenarioBatch(), InboundTransaction{Description: "unrelated"})
	report, err := webhooks.Reconcile(context.Background(), batch)

	require.Error(t, err)
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, ReconcileReport{Received: 2, Skipped: 1, Failed: 1}, report)
	assert.Equal(t, models.OrderStatusPending, orderStatus(t, base, paidLater.ID))
	assert.Empty(t, notifier.Changes())

	// The gateway retries once storage is back.
	store.failCAS = false
	report, err = webhooks.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, models.OrderStatusPaid, orderStatus(t, base, paidLater.ID))
}

func TestReconcile_LookupFailureIsReported(t *testing.T) {
	store := &flakyStore{OrderStore: memory.NewOrderStore(), failLookup: true}
	_, webhooks, _ := newTestServices(store, false)

	report, err := webhooks.Reconcile(context.Background(), scenarioBatch())
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 1, report.Failed)
}
