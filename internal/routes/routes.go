package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/purrpouch/internal/config"
	"github.com/example/purrpouch/internal/handlers"
	"github.com/example/purrpouch/internal/middleware"
	"github.com/example/purrpouch/internal/services"
)

// Services are the application components routes are bound to.
type Services struct {
	Orders     *services.OrderService
	Webhooks   *services.WebhookService
	Streams    *services.StreamBroker
	Deliveries *services.DeliveryService
}

// Register wires up all HTTP routes. db may be nil, in which case the
// account endpoints are not mounted. Operator endpoints, including the
// all-orders payment stream, exist only when cfg.AdminAPIKey is set.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, svc Services) {
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	webhookHandler := handlers.NewWebhookHandler(svc.Webhooks)
	streamHandler := handlers.NewStreamHandler(svc.Streams, svc.Orders)
	deliveryHandler := handlers.NewDeliveryHandler(svc.Orders, svc.Deliveries)

	api := app.Group("/api")

	if db != nil {
		authHandler := handlers.NewAuthHandler(db, cfg)
		auth := api.Group("/auth")
		auth.Post("/register", authHandler.Register)
		auth.Post("/login", authHandler.Login)
	}

	// Payment gateway callbacks. vietqr and pay2s are aliases.
	webhook := api.Group("/webhook", middleware.WebhookKeyMiddleware(cfg.WebhookAPIKey))
	webhook.Post("/vietqr", webhookHandler.ReceiveBatch)
	webhook.Post("/pay2s", webhookHandler.ReceiveBatch)
	webhook.Post("/mbbank", webhookHandler.ReceiveSingle)

	// Live status for order tracking pages.
	stream := api.Group("/stream")
	stream.Get("/orders/:id", streamHandler.OrderStream)

	authRequired := middleware.AuthMiddleware(cfg.JWTSecret)

	orders := api.Group("/orders", authRequired)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Get("/:id/history", orderHandler.GetOrderHistory)
	orders.Post("/:id/cancel", orderHandler.CancelOrder)

	if svc.Deliveries != nil {
		orders.Get("/:id/delivery", deliveryHandler.GetOrderDelivery)
		api.Get("/deliveries", authRequired, deliveryHandler.ListMyDeliveries)
	}

	if cfg.AdminAPIKey == "" {
		return
	}
	adminRequired := middleware.AdminKeyMiddleware(cfg.AdminAPIKey)

	stream.Get("/payments", adminRequired, streamHandler.PaymentsStream)

	if svc.Deliveries != nil {
		admin := api.Group("/admin", adminRequired)
		admin.Get("/deliveries", deliveryHandler.ListAllDeliveries)
		admin.Put("/deliveries/:id/status", deliveryHandler.UpdateStatus)
	}
}
