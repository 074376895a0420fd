package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"gorm.io/gorm"
)

// OrderStore owns the Order and OrderItem lifecycle.
type OrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

// Create inserts the order and its line items in one transaction. The total
// must already equal items + shipping.
func (s *OrderStore) Create(ctx context.Context, o *model.Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("order %s has no items", o.ID)
	}
	if err := o.CheckTotal(); err != nil {
		return err
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	if o.Version == 0 {
		o.Version = 1
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(o).Error
	})
}

func (s *OrderStore) Get(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&o).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// FindByProviderRef resolves an order from a provider session or charge id.
func (s *OrderStore) FindByProviderRef(ctx context.Context, provider, ref string) (*model.Order, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("provider_name = ? AND (provider_session_id = ? OR provider_charge_id = ?)", provider, ref, ref).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var list []model.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// UpdateStatus moves the order to status if its version still equals
// version. chargeID is recorded only when the order has none yet.
// Returns ErrConcurrencyConflict when another writer got there first.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, version int64, status model.OrderStatus, chargeID string) error {
	updates := map[string]any{
		"status":     status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": s.now(),
	}
	if chargeID != "" {
		updates["provider_charge_id"] = gorm.Expr("CASE WHEN provider_charge_id = '' OR provider_charge_id IS NULL THEN ? ELSE provider_charge_id END", chargeID)
	}
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", id, version).
		UpdateColumns(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	return nil
}
