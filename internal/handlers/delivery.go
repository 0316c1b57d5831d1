package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/middleware"
	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
	"github.com/example/purrpouch/internal/services"
	"github.com/example/purrpouch/internal/utils"
)

// DeliveryHandler serves scheduled deliveries to customers and operators.
type DeliveryHandler struct {
	orders     *services.OrderService
	deliveries *services.DeliveryService
}

// NewDeliveryHandler constructs DeliveryHandler.
func NewDeliveryHandler(orders *services.OrderService, deliveries *services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{orders: orders, deliveries: deliveries}
}

// GetOrderDelivery returns the delivery booked for an owned order.
func (h *DeliveryHandler) GetOrderDelivery(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.GetOrder(c.UserContext(), id)
	if err != nil {
		return orderError(err)
	}
	if order.UserID != userID {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	delivery, err := h.deliveries.ForOrder(c.UserContext(), order.ID)
	if err != nil {
		return deliveryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": delivery})
}

// ListMyDeliveries returns the authenticated user's deliveries, soonest first.
func (h *DeliveryHandler) ListMyDeliveries(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return h.list(c, userID)
}

// ListAllDeliveries returns every user's deliveries for operators.
func (h *DeliveryHandler) ListAllDeliveries(c *fiber.Ctx) error {
	return h.list(c, uuid.Nil)
}

func (h *DeliveryHandler) list(c *fiber.Ctx, userID uuid.UUID) error {
	pg := utils.ParsePagination(c)
	filter := repository.DeliveryFilter{
		UserID: userID,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if status := strings.ToUpper(c.Query("status")); status != "" {
		filter.Status = models.DeliveryStatus(status)
		if !filter.Status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}

	deliveries, total, err := h.deliveries.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       deliveries,
		"pagination": pg.Response(total),
	})
}

type deliveryStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus lets an operator move a delivery along.
func (h *DeliveryHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req deliveryStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status := models.DeliveryStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}

	delivery, err := h.deliveries.UpdateStatus(c.UserContext(), id, status)
	if err != nil {
		return deliveryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": delivery})
}

func deliveryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDeliveryNotFound):
		return fiber.NewError(fiber.StatusNotFound, "delivery not found")
	case errors.Is(err, services.ErrInvalidDelivery):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
