package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/purrpouch/internal/models"
)

func newTestTelegram(t *testing.T, status int) (*TelegramService, *[]telegramMessage) {
	t.Helper()

	var sent []telegramMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret/sendMessage", r.URL.Path)

		var msg telegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		sent = append(sent, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	svc := NewTelegramService("secret", "-100200")
	svc.apiURL = server.URL
	svc.async = false
	return svc, &sent
}

func TestTelegramService_AnnouncesPayments(t *testing.T) {
	svc, sent := newTestTelegram(t, http.StatusOK)
	orderID := uuid.New()

	err := svc.Notify(context.Background(), StatusChange{
		OrderID:     orderID,
		Status:      models.OrderStatusPaid,
		Source:      models.EventSourceWebhook,
		TotalAmount: decimal.NewFromInt(1250000),
		Currency:    "VND",
	})
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	msg := (*sent)[0]
	assert.Equal(t, "-100200", msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, orderID.String())
	assert.Contains(t, msg.Text, "1,250,000 VND")
}

func TestTelegramService_IgnoresOtherStatuses(t *testing.T) {
	svc, sent := newTestTelegram(t, http.StatusOK)

	require.NoError(t, svc.Notify(context.Background(), StatusChange{OrderID: uuid.New(), Status: models.OrderStatusCancelled}))
	assert.Empty(t, *sent)
}

func TestTelegramService_SendMessageErrors(t *testing.T) {
	svc, _ := newTestTelegram(t, http.StatusBadGateway)

	err := svc.SendMessage(context.Background(), "1", "hello")
	assert.EqualError(t, err, "telegram returned status 502")

	unconfigured := NewTelegramService("", "")
	assert.NoError(t, unconfigured.SendMessage(context.Background(), "1", "hello"))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "0 VND", FormatPrice(decimal.Zero, ""))
	assert.Equal(t, "999 VND", FormatPrice(decimal.NewFromInt(999), "VND"))
	assert.Equal(t, "50,000 VND", FormatPrice(decimal.NewFromInt(50000), "VND"))
	assert.Equal(t, "1,234,567 USD", FormatPrice(decimal.RequireFromString("1234567.89"), "USD"))
	assert.Equal(t, "-12,000 VND", FormatPrice(decimal.NewFromInt(-12000), ""))
}
