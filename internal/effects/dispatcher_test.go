package effects

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/queue"
	"github.com/ryanfigueredo/mercadito-sub000/internal/reconcile"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db            *gorm.DB
	rdb           *rd.Client
	mr            *miniredis.Miniredis
	products      *store.ProductStore
	orders        *store.OrderStore
	notifications *store.NotificationStore
	dispatcher    *Dispatcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := store.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		db:            db,
		rdb:           rdb,
		mr:            mr,
		products:      store.NewProductStore(db),
		orders:        store.NewOrderStore(db),
		notifications: store.NewNotificationStore(db),
	}
	f.dispatcher = NewDispatcher(Options{
		Products:      f.products,
		Notifications: f.notifications,
		Sales:         queue.NewSaleOutbox(rdb, "sales"),
		Redis:         rdb,
		Owner:         "test",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// reservedOrder creates a PENDING order for 2 units and takes them from a
// product that started with 10.
func (f *fixture) reservedOrder(t *testing.T) (*model.Order, *model.Product) {
	t.Helper()
	ctx := context.Background()
	p := &model.Product{Name: "Café 500g", Price: 5000, Stock: 10}
	require.NoError(t, f.products.Create(ctx, p))
	o := &model.Order{
		ID:             "ord-1",
		CustomerID:     "cust-1",
		TotalAmount:    12000,
		ShippingAmount: 2000,
		PaymentMethod:  "redirect",
		ProviderName:   "mercadopago",
		Items:          []model.OrderItem{{ProductID: p.ID, ProductName: p.Name, Quantity: 2, UnitPrice: 5000}},
	}
	require.NoError(t, f.products.Reserve(ctx, o.Items))
	require.NoError(t, f.orders.Create(ctx, o))
	return o, p
}

func (f *fixture) stock(t *testing.T, id uint) int64 {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestRestoreStock_Once(t *testing.T) {
	f := setup(t)
	o, p := f.reservedOrder(t)
	ctx := context.Background()
	assert.Equal(t, int64(8), f.stock(t, p.ID))

	require.NoError(t, f.dispatcher.RestoreStock(ctx, o))
	require.NoError(t, f.dispatcher.RestoreStock(ctx, o))
	assert.Equal(t, int64(10), f.stock(t, p.ID))
}

func TestRestoreStock_ProceedsWithoutRedis(t *testing.T) {
	f := setup(t)
	o, p := f.reservedOrder(t)
	f.mr.Close()

	require.NoError(t, f.dispatcher.RestoreStock(context.Background(), o))
	assert.Equal(t, int64(10), f.stock(t, p.ID))
}

func TestRestoreStock_RequiresItems(t *testing.T) {
	f := setup(t)
	err := f.dispatcher.RestoreStock(context.Background(), &model.Order{ID: "empty"})
	assert.Error(t, err)
}

func TestNotify_Once(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.dispatcher.Notify(ctx, "cust-1", model.NotifyOrderConfirmed, "ord-1"))
	}
	n, err := f.notifications.CountByOrder(ctx, "ord-1", model.NotifyOrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestForwardSale_Enqueues(t *testing.T) {
	f := setup(t)
	o, _ := f.reservedOrder(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.ForwardSale(ctx, o))
	msgs, err := f.rdb.XRange(ctx, "sales", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ord-1", msgs[0].Values["order_id"])
}

func TestEngineWithDispatcher_CancelRestoresOnce(t *testing.T) {
	f := setup(t)
	o, p := f.reservedOrder(t)
	ctx := context.Background()
	engine := reconcile.NewEngine(f.orders, f.dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := model.PaymentEvent{Provider: "mercadopago", PaymentID: "pay-1", ExternalReference: o.ID, Kind: model.EventRejected}
	for i := 0; i < 3; i++ {
		res, err := engine.HandleEvent(ctx, ev)
		require.NoError(t, err)
		assert.Empty(t, res.Failed)
	}

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCanceled, got.Status)
	assert.Equal(t, int64(10), f.stock(t, p.ID))

	n, err := f.notifications.CountByOrder(ctx, o.ID, model.NotifyOrderCanceled)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEngineWithDispatcher_ApprovedForwardsOnce(t *testing.T) {
	f := setup(t)
	o, p := f.reservedOrder(t)
	ctx := context.Background()
	engine := reconcile.NewEngine(f.orders, f.dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := model.PaymentEvent{Provider: "mercadopago", PaymentID: "pay-1", ExternalReference: o.ID, Kind: model.EventApproved}
	for i := 0; i < 3; i++ {
		_, err := engine.HandleEvent(ctx, ev)
		require.NoError(t, err)
	}

	length, err := f.rdb.XLen(ctx, "sales").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
	assert.Equal(t, int64(8), f.stock(t, p.ID))

	for _, kind := range []model.NotificationKind{model.NotifyPaymentApproved, model.NotifyOrderConfirmed} {
		n, err := f.notifications.CountByOrder(ctx, o.ID, kind)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, kind)
	}
}
