package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/purrpouch/internal/models"
)

var (
	// ErrMalformedBatch means the webhook payload carried no transactions
	// collection at all. It aborts the whole call.
	ErrMalformedBatch = errors.New("malformed webhook payload: transactions field is missing")

	// ErrUnresolvedTransaction marks a batch item with no correlation token
	// or no order behind its token. Logged and skipped.
	ErrUnresolvedTransaction = errors.New("transaction does not resolve to an order")

	// ErrStaleTransaction marks a batch item whose order already left PENDING.
	// Logged and skipped.
	ErrStaleTransaction = errors.New("order is no longer pending")

	// ErrAmountMismatch marks a batch item whose reported amount is below the
	// order total while amount verification is enabled. Logged and skipped.
	ErrAmountMismatch = errors.New("reported amount is below order total")

	// ErrInvalidOrder rejects order creation input.
	ErrInvalidOrder = errors.New("invalid order")
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	OrderID uuid.UUID
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// ErrInvalidTransition matches any *TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid status transition")

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// PersistenceError wraps a storage failure during an order operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
