package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/purrpouch/internal/config"
	"github.com/example/purrpouch/internal/database"
	"github.com/example/purrpouch/internal/repository"
	"github.com/example/purrpouch/internal/routes"
	"github.com/example/purrpouch/internal/services"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	store := repository.NewGormOrderStore(db)
	broker := services.NewStreamBroker()
	hub := services.NewNotificationHub(
		broker,
		services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat),
	)
	orders := services.NewOrderService(store, hub)

	deliveries := services.NewDeliveryService(repository.NewGormDeliveryStore(db))
	orders.SetDeliveryScheduler(deliveries)
	hub.Subscribe(deliveries)

	webhooks := services.NewWebhookService(store, orders, cfg.WebhookVerifyAmount)

	app := fiber.New(fiber.Config{
		AppName: "PurrPouch Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, routes.Services{
		Orders:     orders,
		Webhooks:   webhooks,
		Streams:    broker,
		Deliveries: deliveries,
	})
	if cfg.AdminAPIKey == "" {
		log.Printf("ADMIN_API_KEY is not set; operator endpoints and the payments stream are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RecurringEnabled {
		scheduler := &services.RecurringScheduler{Orders: orders, Interval: cfg.RecurringInterval}
		go scheduler.Run(ctx)
		log.Printf("Recurring order scheduler running every %s", cfg.RecurringInterval)
	}

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("fiber.Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
