package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/example/purrpouch/internal/services"
)

// StreamHandler serves order status changes as Server-Sent Events.
type StreamHandler struct {
	broker    *services.StreamBroker
	orders    *services.OrderService
	keepAlive time.Duration
}

// NewStreamHandler constructs StreamHandler.
func NewStreamHandler(broker *services.StreamBroker, orders *services.OrderService) *StreamHandler {
	return &StreamHandler{broker: broker, orders: orders, keepAlive: 20 * time.Second}
}

// OrderStream follows a single order.
func (h *StreamHandler) OrderStream(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	if _, err := h.orders.GetOrder(c.UserContext(), id); err != nil {
		return orderError(err)
	}
	return h.serve(c, services.OrderTopic(id))
}

// PaymentsStream follows every order.
func (h *StreamHandler) PaymentsStream(c *fiber.Ctx) error {
	return h.serve(c, services.PaymentsTopic)
}

func (h *StreamHandler) serve(c *fiber.Ctx, topic string) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, cancel := h.broker.Subscribe(topic)
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		fmt.Fprintf(w, ": subscribed to %s\n\n", topic)
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case change, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(change)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			// A failed flush means the client went away.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
