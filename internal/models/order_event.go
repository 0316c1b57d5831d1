package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Order event sources.
const (
	EventSourceCheckout  = "checkout"
	EventSourceWebhook   = "webhook"
	EventSourceCustomer  = "customer"
	EventSourceRecurring = "recurring"
)

// OrderEvent records one status change of an order. It is written in the
// same database transaction as the change itself.
type OrderEvent struct {
	BaseModel
	OrderID    uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	FromStatus OrderStatus    `gorm:"size:16" json:"from_status,omitempty"`
	ToStatus   OrderStatus    `gorm:"size:16" json:"to_status"`
	Source     string         `gorm:"size:32" json:"source"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}
