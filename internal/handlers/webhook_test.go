package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/purrpouch/internal/config"
	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

const scenarioToken = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"

const scenarioBody = `{"transactions":[{"description":"PAY a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4 Ma giao dich Trace001","amount":50000}]}`

type webhookResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Received int    `json:"received"`
	Paid     int    `json:"paid"`
}

func seedPending(t *testing.T, a *testApp, token string, total int64) *models.Order {
	t.Helper()

	order := &models.Order{
		UserID:           uuid.New(),
		CorrelationToken: &token,
		TotalAmount:      decimal.NewFromInt(total),
		Currency:         "VND",
	}
	require.NoError(t, a.store.Create(context.Background(), order))
	return order
}

func statusOf(t *testing.T, a *testApp, id uuid.UUID) models.OrderStatus {
	t.Helper()

	order, err := a.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func TestWebhook_ScenarioAndReplay(t *testing.T) {
	a := newTestApp(t, config.Config{}, nil)
	order := seedPending(t, a, scenarioToken, 50000)

	code, raw := a.do(t, http.MethodPost, "/api/webhook/vietqr", scenarioBody, nil)
	require.Equal(t, http.StatusOK, code, string(raw))

	resp := decode[webhookResponse](t, raw)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, resp.Received)
	assert.Equal(t, 1, resp.Paid)
	assert.Equal(t, models.OrderStatusPaid, statusOf(t, a, order.ID))

	// Same delivery again through the other alias.
	code, raw = a.do(t, http.MethodPost, "/api/webhook/pay2s", scenarioBody, nil)
	require.Equal(t, http.StatusOK, code, string(raw))

	resp = decode[webhookResponse](t, raw)
	assert.Equal(t, "success", resp.Status)
	assert.Zero(t, resp.Paid)
	assert.Equal(t, models.OrderStatusPaid, statusOf(t, a, order.ID))
}

func TestWebhook_PayloadShapes(t *testing.T) {
	a := newTestApp(t, config.Config{}, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty list", `{"transactions":[]}`, http.StatusOK},
		{"missing transactions", `{}`, http.StatusBadRequest},
		{"null transactions", `{"transactions":null}`, http.StatusBadRequest},
		{"not json", `transactions=1`, http.StatusBadRequest},
		{"unknown token", `{"transactions":[{"description":"PAY ffffffffffffffffffffffffffffffff Ma giao dich X","amount":1}]}`, http.StatusOK},
		{"no description", `{"transactions":[{"amount":1}]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/webhook/vietqr", "/api/webhook/pay2s"} {
				code, raw := a.do(t, http.MethodPost, path, tt.body, nil)
				assert.Equal(t, tt.want, code, "%s: %s", path, raw)
			}
		})
	}
}

func TestWebhook_AcceptsGatewayFieldNames(t *testing.T) {
	a := newTestApp(t, config.Config{WebhookVerifyAmount: true}, nil)
	order := seedPending(t, a, scenarioToken, 50000)

	body := `{"transactions":[{"content":"CK a1b2c3d4-e5f6-a1b2-c3d4-e5f6a1b2c3d4 thanh toan","transferAmount":50000}]}`
	code, raw := a.do(t, http.MethodPost, "/api/webhook/pay2s", body, nil)
	require.Equal(t, http.StatusOK, code, string(raw))

	assert.Equal(t, 1, decode[webhookResponse](t, raw).Paid)
	assert.Equal(t, models.OrderStatusPaid, statusOf(t, a, order.ID))
}

func TestWebhook_MBBankSingleTransaction(t *testing.T) {
	a := newTestApp(t, config.Config{}, nil)
	order := seedPending(t, a, scenarioToken, 50000)

	code, raw := a.do(t, http.MethodPost, "/api/webhook/mbbank", `{"amount":50000}`, nil)
	assert.Equal(t, http.StatusBadRequest, code, string(raw))

	body := `{"description":"PAY a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4 Ma giao dich FT26","amount":50000}`
	code, raw = a.do(t, http.MethodPost, "/api/webhook/mbbank", body, nil)
	require.Equal(t, http.StatusOK, code, string(raw))
	assert.Equal(t, 1, decode[webhookResponse](t, raw).Paid)
	assert.Equal(t, models.OrderStatusPaid, statusOf(t, a, order.ID))
}

func TestWebhook_RequiresKeyWhenConfigured(t *testing.T) {
	a := newTestApp(t, config.Config{WebhookAPIKey: "gateway-key"}, nil)

	code, _ := a.do(t, http.MethodPost, "/api/webhook/vietqr", `{"transactions":[]}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(t, http.MethodPost, "/api/webhook/vietqr", `{"transactions":[]}`,
		map[string]string{"Authorization": "Apikey wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(t, http.MethodPost, "/api/webhook/vietqr", `{"transactions":[]}`,
		map[string]string{"Authorization": "Apikey gateway-key"})
	assert.Equal(t, http.StatusOK, code)
}

func TestWebhook_PersistenceFailureAsksForRetry(t *testing.T) {
	a := newTestApp(t, config.Config{}, func(s repository.OrderStore) repository.OrderStore {
		return failingStore{s}
	})
	order := seedPending(t, a, scenarioToken, 50000)

	code, raw := a.do(t, http.MethodPost, "/api/webhook/vietqr", scenarioBody, nil)
	require.Equal(t, http.StatusInternalServerError, code, string(raw))

	resp := decode[webhookResponse](t, raw)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Received)
	assert.Equal(t, models.OrderStatusPending, statusOf(t, a, order.ID))
}

func TestWebhook_UnreadableItemDoesNotBlockBatch(t *testing.T) {
	a := newTestApp(t, config.Config{}, nil)
	order := seedPending(t, a, scenarioToken, 50000)

	body := `{"transactions":[
		{"description":"PAY a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4 Ma giao dich Trace001","amount":50000},
		{"content":"CK hello","transferAmount":"50,000"},
		{"description":12345},
		null
	]}`
	code, raw := a.do(t, http.MethodPost, "/api/webhook/vietqr", body, nil)
	require.Equal(t, http.StatusOK, code, string(raw))

	resp := decode[webhookResponse](t, raw)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 4, resp.Received)
	assert.Equal(t, 1, resp.Paid)
	assert.Equal(t, models.OrderStatusPaid, statusOf(t, a, order.ID))

	code, _ = a.do(t, http.MethodPost, "/api/webhook/pay2s", `{"transactions":"oops"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
