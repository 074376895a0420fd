package store

import (
	"context"
	"testing"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStore_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Banana", 5000, 10)
	o := newOrder("ord-1", p, 2, 2000)
	require.NoError(t, orders.Create(ctx, o))

	got, err := orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)
	assert.Equal(t, int64(12000), got.TotalAmount)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(5000), got.Items[0].UnitPrice)
	assert.NoError(t, got.CheckTotal())
}

func TestOrderStore_CreateRejectsWrongTotal(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)

	p := seedProduct(t, products, "Banana", 5000, 10)
	o := newOrder("ord-1", p, 2, 2000)
	o.TotalAmount = 11999

	require.Error(t, orders.Create(context.Background(), o))
	_, err := orders.Get(context.Background(), "ord-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_UnitPriceIsSnapshot(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Milk", 700, 10)
	require.NoError(t, orders.Create(ctx, newOrder("ord-1", p, 1, 0)))
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p.ID).Update("price", 900).Error)

	got, err := orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Items[0].UnitPrice)
	assert.Equal(t, int64(700), got.TotalAmount)
}

func TestOrderStore_UpdateStatusVersionCheck(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Rice", 1000, 10)
	require.NoError(t, orders.Create(ctx, newOrder("ord-1", p, 1, 0)))

	require.NoError(t, orders.UpdateStatus(ctx, "ord-1", 1, model.OrderConfirmed, ""))

	// second writer still holding version 1 loses
	err := orders.UpdateStatus(ctx, "ord-1", 1, model.OrderCanceled, "")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	got, err := orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	err = orders.UpdateStatus(ctx, "missing", 1, model.OrderConfirmed, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_UpdateStatusKeepsFirstChargeID(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Rice", 1000, 10)
	require.NoError(t, orders.Create(ctx, newOrder("ord-1", p, 1, 0)))

	require.NoError(t, orders.UpdateStatus(ctx, "ord-1", 1, model.OrderPending, "ch_1"))
	require.NoError(t, orders.UpdateStatus(ctx, "ord-1", 2, model.OrderConfirmed, "ch_2"))

	got, err := orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", got.ProviderChargeID)
}

func TestOrderStore_FindByProviderRef(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Rice", 1000, 10)
	o := newOrder("ord-1", p, 1, 0)
	o.ProviderSessionID = "or_abc"
	o.ProviderChargeID = "ch_xyz"
	require.NoError(t, orders.Create(ctx, o))

	got, err := orders.FindByProviderRef(ctx, "pagarme", "or_abc")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.ID)

	got, err = orders.FindByProviderRef(ctx, "pagarme", "ch_xyz")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", got.ID)

	_, err = orders.FindByProviderRef(ctx, "mercadopago", "or_abc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = orders.FindByProviderRef(ctx, "pagarme", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_ListByCustomer(t *testing.T) {
	db := setupDB(t)
	products := NewProductStore(db)
	orders := NewOrderStore(db)
	ctx := context.Background()

	p := seedProduct(t, products, "Rice", 1000, 10)
	require.NoError(t, orders.Create(ctx, newOrder("ord-1", p, 1, 0)))
	other := newOrder("ord-2", p, 1, 0)
	other.CustomerID = "cust-2"
	require.NoError(t, orders.Create(ctx, other))

	list, err := orders.ListByCustomer(ctx, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ord-1", list[0].ID)
}
