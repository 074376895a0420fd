package model

// OrderItem is a line of an order. UnitPrice is captured at checkout and is
// never refreshed from the catalog.
type OrderItem struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	OrderID     string `gorm:"size:36;not null;index" json:"order_id"`
	ProductID   uint   `gorm:"not null;index" json:"product_id"`
	ProductName string `gorm:"size:128;not null" json:"product_name"`
	Quantity    int    `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   int64  `gorm:"not null" json:"unit_price"`
}

func (OrderItem) TableName() string { return "order_items" }

func (it OrderItem) LineTotal() int64 {
	return int64(it.Quantity) * it.UnitPrice
}
