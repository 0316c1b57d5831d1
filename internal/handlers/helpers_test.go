package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/purrpouch/internal/config"
	"github.com/example/purrpouch/internal/repository"
	"github.com/example/purrpouch/internal/repository/memory"
	"github.com/example/purrpouch/internal/routes"
	"github.com/example/purrpouch/internal/services"
	"github.com/example/purrpouch/internal/utils"
)

const testSecret = "test-secret"

type testApp struct {
	app        *fiber.App
	store      *memory.OrderStore
	orders     *services.OrderService
	deliveries *services.DeliveryService
	broker     *services.StreamBroker
}

// failingStore rejects every status write.
type failingStore struct {
	repository.OrderStore
}

func (failingStore) CompareAndSetStatus(context.Context, repository.Transition) (bool, error) {
	return false, errors.New("database is locked")
}

func newTestApp(t *testing.T, cfg config.Config, wrap func(repository.OrderStore) repository.OrderStore) *testApp {
	t.Helper()

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}

	mem := memory.NewOrderStore()
	var store repository.OrderStore = mem
	if wrap != nil {
		store = wrap(mem)
	}

	broker := services.NewStreamBroker()
	hub := services.NewNotificationHub(broker)
	orders := services.NewOrderService(store, hub)
	webhooks := services.NewWebhookService(store, orders, cfg.WebhookVerifyAmount)

	deliveries := services.NewDeliveryService(mem)
	orders.SetDeliveryScheduler(deliveries)
	hub.Subscribe(deliveries)

	app := fiber.New()
	routes.Register(app, nil, &cfg, routes.Services{
		Orders:     orders,
		Webhooks:   webhooks,
		Streams:    broker,
		Deliveries: deliveries,
	})

	return &testApp{app: app, store: mem, orders: orders, deliveries: deliveries, broker: broker}
}

func (a *testApp) do(t *testing.T, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func bearer(t *testing.T, userID uuid.UUID) map[string]string {
	t.Helper()

	token, err := utils.GenerateToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
