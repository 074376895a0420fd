package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductStore_ReserveAndRelease(t *testing.T) {
	s := NewProductStore(setupDB(t))
	ctx := context.Background()

	p := seedProduct(t, s, "Apple", 300, 5)
	items := []model.OrderItem{{ProductID: p.ID, Quantity: 3}}

	require.NoError(t, s.Reserve(ctx, items))
	got, _ := s.Get(ctx, p.ID)
	assert.Equal(t, int64(2), got.Stock)

	require.NoError(t, s.Release(ctx, items))
	got, _ = s.Get(ctx, p.ID)
	assert.Equal(t, int64(5), got.Stock)
}

func TestProductStore_ReserveIsAllOrNothing(t *testing.T) {
	s := NewProductStore(setupDB(t))
	ctx := context.Background()

	a := seedProduct(t, s, "Apple", 300, 5)
	b := seedProduct(t, s, "Pear", 400, 1)

	err := s.Reserve(ctx, []model.OrderItem{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, b.ID, ise.ProductID)
	assert.Equal(t, "insufficient stock for Pear", err.Error())

	got, _ := s.Get(ctx, a.ID)
	assert.Equal(t, int64(5), got.Stock, "first item must be rolled back")
}

func TestProductStore_ReserveUnknownProduct(t *testing.T) {
	s := NewProductStore(setupDB(t))
	err := s.Reserve(context.Background(), []model.OrderItem{{ProductID: 999, Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductStore_ConcurrentReserveNeverOversells(t *testing.T) {
	s := NewProductStore(setupDB(t))
	ctx := context.Background()

	p := seedProduct(t, s, "Last Mango", 900, 1)

	const buyers = 20
	var wg sync.WaitGroup
	var ok, short atomic.Int32
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Reserve(ctx, []model.OrderItem{{ProductID: p.ID, Quantity: 1}})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(buyers-1), short.Load())
	got, _ := s.Get(ctx, p.ID)
	assert.Equal(t, int64(0), got.Stock)
}

func TestProductStore_AdjustAndSet(t *testing.T) {
	s := NewProductStore(setupDB(t))
	ctx := context.Background()

	p := seedProduct(t, s, "Eggs", 1200, 4)

	stock, err := s.Adjust(ctx, p.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stock)

	stock, err = s.Adjust(ctx, p.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stock)

	_, err = s.Adjust(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	require.NoError(t, s.SetStock(ctx, p.ID, 42))
	got, _ := s.Get(ctx, p.ID)
	assert.Equal(t, int64(42), got.Stock)

	assert.ErrorIs(t, s.SetStock(ctx, p.ID, -1), ErrInvalidStock)
	assert.ErrorIs(t, s.SetStock(ctx, 999, 1), ErrNotFound)
	_, err = s.Adjust(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductStore_GetMany(t *testing.T) {
	s := NewProductStore(setupDB(t))
	ctx := context.Background()

	a := seedProduct(t, s, "Apple", 300, 5)
	b := seedProduct(t, s, "Pear", 400, 1)

	got, err := s.GetMany(ctx, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, "Pear", got[b.ID].Name)

	_, err = s.GetMany(ctx, []uint{a.ID, 999})
	assert.ErrorIs(t, err, ErrNotFound)
}
