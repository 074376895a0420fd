package queue

import (
	"fmt"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
)

// SaleMessage is published for every confirmed order so the ERP can book
// the sale.
type SaleMessage struct {
	OrderID        string     `json:"order_id"`
	CustomerID     string     `json:"customer_id"`
	Provider       string     `json:"provider"`
	ChargeID       string     `json:"charge_id,omitempty"`
	TotalAmount    int64      `json:"total_amount"` // centavos
	ShippingAmount int64      `json:"shipping_amount"`
	Items          []SaleItem `json:"items"`
	ConfirmedAt    time.Time  `json:"confirmed_at"`
}

type SaleItem struct {
	ProductID uint  `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

func NewSaleMessage(o *model.Order, at time.Time) SaleMessage {
	items := make([]SaleItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, SaleItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return SaleMessage{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Provider:       o.ProviderName,
		ChargeID:       o.ProviderChargeID,
		TotalAmount:    o.TotalAmount,
		ShippingAmount: o.ShippingAmount,
		Items:          items,
		ConfirmedAt:    at.UTC(),
	}
}

func (m SaleMessage) Validate() error {
	if m.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if len(m.Items) == 0 {
		return fmt.Errorf("items are required")
	}
	if m.TotalAmount <= 0 {
		return fmt.Errorf("total_amount must be > 0")
	}
	return nil
}

// AdjustMode selects how InventoryAdjustment.Quantity is applied.
type AdjustMode string

const (
	AdjustSet   AdjustMode = "set"
	AdjustDelta AdjustMode = "delta"
)

// InventoryAdjustment comes from the warehouse system. RequestID makes
// redelivery harmless.
type InventoryAdjustment struct {
	RequestID string     `json:"request_id"`
	ProductID uint       `json:"product_id"`
	Mode      AdjustMode `json:"mode"`
	Quantity  int64      `json:"quantity"`
}

func (m InventoryAdjustment) Validate() error {
	if m.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if m.ProductID == 0 {
		return fmt.Errorf("product_id is required")
	}
	switch m.Mode {
	case AdjustSet:
		if m.Quantity < 0 {
			return fmt.Errorf("quantity must be >= 0 for mode set")
		}
	case AdjustDelta:
		if m.Quantity == 0 {
			return fmt.Errorf("quantity must be non-zero for mode delta")
		}
	default:
		return fmt.Errorf("unknown mode %q", m.Mode)
	}
	return nil
}
