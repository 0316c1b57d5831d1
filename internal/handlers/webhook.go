package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/services"
)

// WebhookHandler receives bank transfer notifications from payment gateways.
type WebhookHandler struct {
	reconciler *services.WebhookService
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(reconciler *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// webhookTransaction accepts both the MBBank field names (description,
// amount) and the VietQR/Pay2S ones (content, transferAmount).
type webhookTransaction struct {
	Description    *string          `json:"description"`
	Content        *string          `json:"content"`
	Amount         *decimal.Decimal `json:"amount"`
	TransferAmount *decimal.Decimal `json:"transferAmount"`
}

func (t webhookTransaction) hasMemo() bool {
	return t.Description != nil || t.Content != nil
}

func (t webhookTransaction) inbound() services.InboundTransaction {
	var txn services.InboundTransaction
	switch {
	case t.Description != nil:
		txn.Description = *t.Description
	case t.Content != nil:
		txn.Description = *t.Content
	}
	switch {
	case t.Amount != nil:
		txn.Amount = *t.Amount
	case t.TransferAmount != nil:
		txn.Amount = *t.TransferAmount
	}
	return txn
}

type webhookBatchRequest struct {
	Transactions *[]json.RawMessage `json:"transactions"`
}

// ReceiveBatch handles the VietQR and Pay2S webhooks, which share one format:
// {"transactions":[{...}, ...]}. A missing or null transactions field is a
// malformed call; an empty list is acknowledged. Items are decoded one by one
// so a single unreadable item is skipped instead of failing the batch.
func (h *WebhookHandler) ReceiveBatch(c *fiber.Ctx) error {
	var req webhookBatchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return webhookError(c, fiber.StatusBadRequest, "invalid JSON payload")
	}
	if req.Transactions == nil {
		return h.reconcile(c, nil)
	}

	batch := make([]services.InboundTransaction, 0, len(*req.Transactions))
	for i, raw := range *req.Transactions {
		var t webhookTransaction
		if err := json.Unmarshal(raw, &t); err != nil {
			// An empty description never resolves, so the item is counted
			// as skipped.
			log.Printf("[Webhook] transaction %d is unreadable: %v", i, err)
			batch = append(batch, services.InboundTransaction{})
			continue
		}
		batch = append(batch, t.inbound())
	}

	return h.reconcile(c, batch)
}

// ReceiveSingle handles the MBBank webhook, which posts one transaction object.
func (h *WebhookHandler) ReceiveSingle(c *fiber.Ctx) error {
	var req webhookTransaction
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return webhookError(c, fiber.StatusBadRequest, "invalid JSON payload")
	}
	if !req.hasMemo() {
		return webhookError(c, fiber.StatusBadRequest, "transaction description is missing")
	}

	return h.reconcile(c, []services.InboundTransaction{req.inbound()})
}

func (h *WebhookHandler) reconcile(c *fiber.Ctx, batch []services.InboundTransaction) error {
	report, err := h.reconciler.Reconcile(c.UserContext(), batch)
	if err != nil {
		if errors.Is(err, services.ErrMalformedBatch) {
			return webhookError(c, fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":   "error",
			"message":  "payment processing failed",
			"received": report.Received,
			"paid":     report.Paid,
		})
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"message":  "Payment processed successfully",
		"received": report.Received,
		"paid":     report.Paid,
	})
}

func webhookError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}
