package model

import "time"

// Product is a catalog entry. Stock only moves through conditional UPDATEs
// and may never drop below zero.
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `gorm:"size:128;not null" json:"name"`
	Price int64  `gorm:"not null" json:"price"` // minor units
	Stock int64  `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
}

func (Product) TableName() string { return "products" }
