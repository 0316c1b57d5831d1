package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus tracks a scheduled drop-off.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusInTransit, DeliveryStatusDelivered,
		DeliveryStatusFailed, DeliveryStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the delivery is finished.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed || s == DeliveryStatusCancelled
}

// Delivery is one scheduled drop-off of an order.
type Delivery struct {
	BaseModel
	OrderID       uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	UserID        uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	ScheduledTime time.Time      `gorm:"index" json:"scheduled_time"`
	DeliveredTime *time.Time     `json:"delivered_time,omitempty"`
	Status        DeliveryStatus `gorm:"size:16;index;not null" json:"status"`
	Address       string         `json:"address"`
}
