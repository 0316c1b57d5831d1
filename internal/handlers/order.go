package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/middleware"
	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
	"github.com/example/purrpouch/internal/services"
	"github.com/example/purrpouch/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type orderItemRequest struct {
	KitID     string          `json:"kit_id"`
	KitName   string          `json:"kit_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	Items                 []orderItemRequest `json:"items"`
	TotalAmount           decimal.Decimal    `json:"total_amount"`
	Currency              string             `json:"currency"`
	Notes                 string             `json:"notes"`
	DeliveryAddress       string             `json:"delivery_address"`
	PaymentMethod         string             `json:"payment_method"`
	IsRecurring           bool               `json:"is_recurring"`
	RecurringFrequency    string             `json:"recurring_frequency"`
	PreferredDeliveryTime string             `json:"preferred_delivery_time"`
}

// CreateOrder places an order for the authenticated user. Bank transfer
// orders (the default) get a correlation token and a payment memo.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	in := services.CreateOrderInput{
		UserID:                  userID,
		TotalAmount:             req.TotalAmount,
		Currency:                strings.ToUpper(strings.TrimSpace(req.Currency)),
		Notes:                   req.Notes,
		DeliveryAddress:         req.DeliveryAddress,
		PreferredDeliveryTime:   req.PreferredDeliveryTime,
		RequiresPaymentMatching: req.PaymentMethod != "cash",
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, services.OrderItemInput{
			KitID:     item.KitID,
			KitName:   item.KitName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	if req.IsRecurring {
		in.Recurrence = &services.RecurrenceInput{
			Frequency:             models.RecurringFrequency(strings.ToUpper(req.RecurringFrequency)),
			PreferredDeliveryTime: req.PreferredDeliveryTime,
		}
	}

	order, err := h.orders.CreateOrder(c.UserContext(), in)
	if err != nil {
		return orderError(err)
	}

	data := fiber.Map{
		"id":         order.ID,
		"status":     order.Status,
		"total":      order.TotalAmount,
		"currency":   order.Currency,
		"created_at": order.CreatedAt,
	}
	if order.CorrelationToken != nil {
		data["correlation_token"] = *order.CorrelationToken
		data["payment_memo"] = services.PaymentMemo(*order.CorrelationToken)
	}
	if order.NextDeliveryDate != nil {
		data["next_delivery_date"] = order.NextDeliveryDate
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	filter := repository.OrderFilter{
		UserID: userID,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if status := strings.ToUpper(c.Query("status")); status != "" {
		filter.Status = models.OrderStatus(status)
		if !filter.Status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}

	orders, total, err := h.orders.ListOrders(c.UserContext(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders,
		"pagination": pg.Response(total),
	})
}

// GetOrder returns a single order owned by the authenticated user.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.ownedOrder(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// GetOrderHistory returns the status events of an owned order.
func (h *OrderHandler) GetOrderHistory(c *fiber.Ctx) error {
	order, err := h.ownedOrder(c)
	if err != nil {
		return err
	}

	events, err := h.orders.StatusHistory(c.UserContext(), order.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": events})
}

// CancelOrder cancels an owned PENDING order.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.CancelOrder(c.UserContext(), userID, id)
	if err != nil {
		return orderError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

func (h *OrderHandler) ownedOrder(c *fiber.Ctx) (*models.Order, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.GetOrder(c.UserContext(), id)
	if err != nil {
		return nil, orderError(err)
	}
	if order.UserID != userID {
		return nil, fiber.NewError(fiber.StatusNotFound, "order not found")
	}
	return order, nil
}

func orderError(err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	case errors.Is(err, services.ErrInvalidOrder):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
