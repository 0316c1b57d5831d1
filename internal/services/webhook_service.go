package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/purrpouch/internal/models"
	"github.com/example/purrpouch/internal/repository"
)

// InboundTransaction is one bank transfer reported by a payment gateway.
// Nothing in it is trusted: the description is free text typed by the payer.
type InboundTransaction struct {
	Description string
	Amount      decimal.Decimal
}

// ReconcileReport summarises one webhook batch.
type ReconcileReport struct {
	Received int `json:"received"`
	Paid     int `json:"paid"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// StatusUpdater is the part of the order lifecycle the reconciler drives.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, u StatusUpdate) (*models.Order, error)
}

// WebhookService matches gateway transactions to pending orders and marks
// them paid. Replaying a batch is a no-op, as is delivering the same batch
// through another gateway alias.
type WebhookService struct {
	store        repository.OrderStore
	orders       StatusUpdater
	verifyAmount bool
}

// NewWebhookService constructs a WebhookService. With verifyAmount set, a
// transfer smaller than the order total does not pay the order.
func NewWebhookService(store repository.OrderStore, orders StatusUpdater, verifyAmount bool) *WebhookService {
	return &WebhookService{store: store, orders: orders, verifyAmount: verifyAmount}
}

// Reconcile processes batch in order. A nil batch is ErrMalformedBatch; an
// empty one is fine. Items are independent: unresolved and stale items are
// skipped, and a storage failure on one item does not stop the rest. Storage
// failures are returned together once the batch is done.
func (s *WebhookService) Reconcile(ctx context.Context, batch []InboundTransaction) (ReconcileReport, error) {
	if batch == nil {
		return ReconcileReport{}, ErrMalformedBatch
	}

	report := ReconcileReport{Received: len(batch)}
	var failures []error

	for i, txn := range batch {
		err := s.reconcileOne(ctx, txn)
		switch {
		case err == nil:
			report.Paid++
		case errors.Is(err, ErrUnresolvedTransaction),
			errors.Is(err, ErrStaleTransaction),
			errors.Is(err, ErrAmountMismatch):
			report.Skipped++
		default:
			report.Failed++
			log.Printf("[Webhook] transaction %d failed: %v", i, err)
			failures = append(failures, fmt.Errorf("transaction %d: %w", i, err))
		}
	}

	log.Printf("[Webhook] batch done: received=%d paid=%d skipped=%d failed=%d",
		report.Received, report.Paid, report.Skipped, report.Failed)

	if len(failures) > 0 {
		return report, errors.Join(failures...)
	}
	return report, nil
}

func (s *WebhookService) reconcileOne(ctx context.Context, txn InboundTransaction) error {
	token, ok := ExtractCorrelationToken(txn.Description)
	if !ok {
		log.Printf("[Webhook] no correlation token in %q", txn.Description)
		return ErrUnresolvedTransaction
	}
	token = strings.ToLower(token)

	order, err := s.store.FindByCorrelationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Printf("[Webhook] no order for token %s", token)
			return ErrUnresolvedTransaction
		}
		return &PersistenceError{Op: "find order by token", Err: err}
	}

	if order.Status != models.OrderStatusPending {
		log.Printf("[Webhook] order %s is %s, ignoring transaction", order.ID, order.Status)
		return ErrStaleTransaction
	}

	if s.verifyAmount && txn.Amount.LessThan(order.TotalAmount) {
		log.Printf("[Webhook] order %s expects %s, transfer reported %s", order.ID, order.TotalAmount, txn.Amount)
		return ErrAmountMismatch
	}

	_, err = s.orders.UpdateStatus(ctx, StatusUpdate{
		OrderID: order.ID,
		Status:  models.OrderStatusPaid,
		Source:  models.EventSourceWebhook,
		Metadata: map[string]any{
			"description": txn.Description,
			"amount":      txn.Amount.String(),
		},
	})
	switch {
	case err == nil:
		log.Printf("[Webhook] order %s paid", order.ID)
		return nil
	case errors.Is(err, ErrInvalidTransition):
		log.Printf("[Webhook] order %s changed concurrently: %v", order.ID, err)
		return ErrStaleTransaction
	case errors.Is(err, repository.ErrOrderNotFound):
		return ErrUnresolvedTransaction
	default:
		return err
	}
}
