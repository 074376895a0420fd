package effects

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"
	"github.com/ryanfigueredo/mercadito-sub000/internal/queue"
	"github.com/ryanfigueredo/mercadito-sub000/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

type StockReleaser interface {
	Release(ctx context.Context, items []model.OrderItem) error
}

type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) (bool, error)
}

type SaleEnqueuer interface {
	Enqueue(ctx context.Context, msg queue.SaleMessage) (string, error)
}

// Dispatcher carries out what a committed order transition triggers.
type Dispatcher struct {
	products      StockReleaser
	notifications NotificationWriter
	sales         SaleEnqueuer
	rdb           *rd.Client
	owner         string
	logger        *slog.Logger
	now           func() time.Time
}

type Options struct {
	Products      StockReleaser
	Notifications NotificationWriter
	Sales         SaleEnqueuer
	// Redis guards restocks with a claim key. Optional.
	Redis  *rd.Client
	Owner  string
	Logger *slog.Logger
}

func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	owner := opts.Owner
	if owner == "" {
		owner = "mercadito"
	}
	return &Dispatcher{
		products:      opts.Products,
		notifications: opts.Notifications,
		sales:         opts.Sales,
		rdb:           opts.Redis,
		owner:         owner,
		logger:        logger,
		now:           time.Now,
	}
}

// RestoreStock returns an order's reserved quantities. The terminal CANCELED
// transition happens once; the Redis claim additionally stops a replayed
// effect from releasing twice. A Redis outage does not block the restock.
func (d *Dispatcher) RestoreStock(ctx context.Context, o *model.Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order %s has no items loaded", o.ID)
	}
	key := redis.RestockClaimKey(o.ID)
	claimed := false
	if d.rdb != nil {
		ok, err := redis.ClaimOnce(ctx, d.rdb, key, d.owner, redis.DefaultClaimTTL)
		switch {
		case err != nil:
			d.logger.Warn("restock_claim_unavailable", "order_id", o.ID, "err", err)
		case !ok:
			d.logger.Info("restock_already_done", "order_id", o.ID)
			return nil
		default:
			claimed = true
		}
	}

	if err := d.products.Release(ctx, o.Items); err != nil {
		if claimed {
			if relErr := redis.ReleaseClaim(ctx, d.rdb, key, d.owner); relErr != nil {
				d.logger.Warn("restock_claim_release_failed", "order_id", o.ID, "err", relErr)
			}
		}
		return fmt.Errorf("release stock: %w", err)
	}
	d.logger.Info("stock_restored", "order_id", o.ID, "items", len(o.Items))
	return nil
}

func (d *Dispatcher) Notify(ctx context.Context, userID string, kind model.NotificationKind, orderID string) error {
	created, err := d.notifications.Create(ctx, &model.Notification{
		UserID:  userID,
		OrderID: orderID,
		Kind:    kind,
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if !created {
		d.logger.Info("notification_exists", "order_id", orderID, "kind", kind)
	}
	return nil
}

// ForwardSale hands the confirmed order to the sale outbox.
func (d *Dispatcher) ForwardSale(ctx context.Context, o *model.Order) error {
	id, err := d.sales.Enqueue(ctx, queue.NewSaleMessage(o, d.now()))
	if err != nil {
		return fmt.Errorf("enqueue sale: %w", err)
	}
	d.logger.Info("sale_enqueued", "order_id", o.ID, "entry_id", id)
	return nil
}
