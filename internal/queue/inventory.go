package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/store"
	"github.com/ryanfigueredo/mercadito-sub000/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// StockWriter is the part of the product store inventory sync needs.
type StockWriter interface {
	Adjust(ctx context.Context, id uint, delta int64) (int64, error)
	SetStock(ctx context.Context, id uint, stock int64) error
}

// InventorySync applies warehouse adjustments at most once per request id.
type InventorySync struct {
	products StockWriter
	rdb      *rd.Client
	owner    string
	logger   *slog.Logger
}

func NewInventorySync(products StockWriter, rdb *rd.Client, owner string, logger *slog.Logger) *InventorySync {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventorySync{products: products, rdb: rdb, owner: owner, logger: logger}
}

// Apply returns false when the request id was already applied.
func (s *InventorySync) Apply(ctx context.Context, adj InventoryAdjustment) (bool, error) {
	if err := adj.Validate(); err != nil {
		return false, err
	}
	key := redis.InventoryClaimKey(adj.RequestID)
	ok, err := redis.ClaimOnce(ctx, s.rdb, key, s.owner, redis.DefaultClaimTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", adj.RequestID, err)
	}
	if !ok {
		s.logger.Info("inventory_adjustment_duplicate", "request_id", adj.RequestID)
		return false, nil
	}

	switch adj.Mode {
	case AdjustSet:
		err = s.products.SetStock(ctx, adj.ProductID, adj.Quantity)
	case AdjustDelta:
		_, err = s.products.Adjust(ctx, adj.ProductID, adj.Quantity)
	}
	if err != nil {
		// let a redelivery try again
		if relErr := redis.ReleaseClaim(context.WithoutCancel(ctx), s.rdb, key, s.owner); relErr != nil {
			s.logger.Warn("inventory_claim_release_failed", "request_id", adj.RequestID, "err", relErr)
		}
		return false, err
	}
	s.logger.Info("inventory_adjusted",
		"request_id", adj.RequestID,
		"product_id", adj.ProductID,
		"mode", adj.Mode,
		"quantity", adj.Quantity,
	)
	return true, nil
}

func decodeAdjustment(b []byte) (InventoryAdjustment, error) {
	var adj InventoryAdjustment
	if err := json.Unmarshal(b, &adj); err != nil {
		return adj, fmt.Errorf("decode adjustment: %w", err)
	}
	return adj, adj.Validate()
}

// InventoryConsumer reads the inventory topic and commits an offset only
// after the adjustment was applied or judged unrecoverable.
type InventoryConsumer struct {
	r      *kafka.Reader
	sync   *InventorySync
	logger *slog.Logger
}

func NewInventoryConsumer(brokers []string, topic, groupID string, sync *InventorySync, logger *slog.Logger) *InventoryConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryConsumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		sync:   sync,
		logger: logger,
	}
}

func (c *InventoryConsumer) Close() error { return c.r.Close() }

func (c *InventoryConsumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("inventory_fetch_failed", "err", err)
			}
			return
		}
		// the reader has moved past m, so a transient failure is retried here
		for err := c.handle(ctx, m.Value); err != nil; err = c.handle(ctx, m.Value) {
			c.logger.Warn("inventory_apply_failed", "offset", m.Offset, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
		}
		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("inventory_commit_failed", "offset", m.Offset, "err", err)
		}
	}
}

func (c *InventoryConsumer) handle(ctx context.Context, value []byte) error {
	adj, err := decodeAdjustment(value)
	if err != nil {
		c.logger.Warn("inventory_message_dropped", "err", err)
		return nil
	}
	_, err = c.sync.Apply(ctx, adj)
	if isPermanent(err) {
		c.logger.Warn("inventory_message_dropped", "request_id", adj.RequestID, "err", err)
		return nil
	}
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidStock) || errors.Is(err, store.ErrInsufficientStock)
}
