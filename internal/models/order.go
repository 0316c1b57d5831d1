package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the payment state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no automated transition may leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

// RecurringFrequency controls how often a recurring order is re-delivered.
type RecurringFrequency string

const (
	FrequencyDaily    RecurringFrequency = "DAILY"
	FrequencyWeekly   RecurringFrequency = "WEEKLY"
	FrequencyBiweekly RecurringFrequency = "BIWEEKLY"
	FrequencyMonthly  RecurringFrequency = "MONTHLY"
)

// Valid reports whether f is one of the known frequencies.
func (f RecurringFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Next returns the delivery date following from.
func (f RecurringFrequency) Next(from time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}

// Order is a customer meal-kit order.
type Order struct {
	BaseModel
	UserID           uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	CorrelationToken *string         `gorm:"size:32;uniqueIndex" json:"correlation_token,omitempty"`
	Status           OrderStatus     `gorm:"size:16;index;not null" json:"status"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	Currency         string          `gorm:"size:8" json:"currency"`
	Notes            string          `json:"notes"`
	DeliveryAddress  string          `json:"delivery_address,omitempty"`

	IsRecurring           bool               `gorm:"index" json:"is_recurring"`
	RecurringFrequency    RecurringFrequency `gorm:"size:16" json:"recurring_frequency,omitempty"`
	PreferredDeliveryTime string             `gorm:"size:5" json:"preferred_delivery_time,omitempty"`
	NextDeliveryDate      *time.Time         `gorm:"index" json:"next_delivery_date,omitempty"`
	RecurrenceSeq         int                `gorm:"not null;default:0" json:"-"`
	ParentOrderID         *uuid.UUID         `gorm:"type:uuid;index" json:"parent_order_id,omitempty"`

	Items []OrderItem `json:"items,omitempty"`
}

// BeforeCreate assigns the ID and defaults the status to PENDING.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if err := o.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}

// OrderItem is one meal-kit line of an order.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	KitID     string          `gorm:"size:64" json:"kit_id"`
	KitName   string          `json:"kit_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2)" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:numeric(14,2)" json:"line_total"`
}
