package store

import (
	"context"
	"strings"
	"testing"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupDB opens a private in-memory database. One connection keeps every
// statement on the same memory instance.
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenMemory(name)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedProduct(t *testing.T, s *ProductStore, name string, price, stock int64) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: price, Stock: stock}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func newOrder(id string, p *model.Product, qty int, shipping int64) *model.Order {
	items := []model.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: qty, UnitPrice: p.Price}}
	return &model.Order{
		ID:             id,
		CustomerID:     "cust-1",
		Status:         model.OrderPending,
		TotalAmount:    int64(qty)*p.Price + shipping,
		ShippingAmount: shipping,
		PaymentMethod:  "pix",
		ProviderName:   "pagarme",
		Items:          items,
	}
}
