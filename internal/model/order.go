package model

import (
	"fmt"
	"time"
)

// OrderStatus is the canonical lifecycle stage of an order. The string values
// are persisted and must not be renamed without migrating stored rows.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCanceled  OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further transition can leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCanceled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCanceled:
		return true
	}
	return false
}

// Order is the durable purchase record. Amounts are in minor currency units.
// Orders are never deleted, so there is no soft-delete column either.
type Order struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID     string      `gorm:"size:64;not null;index" json:"customer_id"`
	Status         OrderStatus `gorm:"size:16;not null;index" json:"status"`
	TotalAmount    int64       `gorm:"not null" json:"total_amount"`
	ShippingAmount int64       `gorm:"not null;default:0" json:"shipping_amount"`
	PaymentMethod  string      `gorm:"size:32;not null" json:"payment_method"`

	AddressLine string `gorm:"size:255" json:"address_line"`
	City        string `gorm:"size:128" json:"city"`
	State       string `gorm:"size:64" json:"state"`
	PostalCode  string `gorm:"size:16" json:"postal_code"`

	// Provider correlation. At most one provider pairing per order.
	ProviderName      string `gorm:"size:32" json:"provider_name"`
	ProviderSessionID string `gorm:"size:128;index" json:"provider_session_id"`
	ProviderChargeID  string `gorm:"size:128;index" json:"provider_charge_id"`
	ClientReference   string `gorm:"type:text" json:"client_reference,omitempty"`

	// Version guards status updates (optimistic concurrency).
	Version int64 `gorm:"not null;default:1" json:"version"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT" json:"items,omitempty"`
}

func (Order) TableName() string { return "orders" }

// ItemsTotal sums quantity * unit price over the line items.
func (o *Order) ItemsTotal() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.LineTotal()
	}
	return sum
}

// CheckTotal verifies total == items + shipping.
func (o *Order) CheckTotal() error {
	if want := o.ItemsTotal() + o.ShippingAmount; o.TotalAmount != want {
		return fmt.Errorf("order %s total %d does not match items+shipping %d", o.ID, o.TotalAmount, want)
	}
	return nil
}
