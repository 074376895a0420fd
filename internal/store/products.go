package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"gorm.io/gorm"
)

// ProductStore is the only writer of Product.stock. Every mutation is a
// single conditional UPDATE, never read-modify-write.
type ProductStore struct {
	db *gorm.DB
}

func NewProductStore(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) Create(ctx context.Context, p *model.Product) error {
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *ProductStore) Get(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context) ([]model.Product, error) {
	var list []model.Product
	err := s.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

// GetMany loads products by id. Missing ids yield ErrNotFound.
func (s *ProductStore) GetMany(ctx context.Context, ids []uint) (map[uint]model.Product, error) {
	var list []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]model.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
	}
	return out, nil
}

// Reserve decrements stock for every item or for none of them.
func (s *ProductStore) Reserve(ctx context.Context, items []model.OrderItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			res := tx.Model(&model.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return missingOrShort(tx, it.ProductID, it.ProductName)
			}
		}
		return nil
	})
}

// Release puts reserved quantities back.
func (s *ProductStore) Release(ctx context.Context, items []model.OrderItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			res := tx.Model(&model.Product{}).
				Where("id = ?", it.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("product %d: %w", it.ProductID, ErrNotFound)
			}
		}
		return nil
	})
}

// Adjust applies a signed delta and returns the resulting stock. A delta
// that would go below zero fails with ErrInsufficientStock.
func (s *ProductStore) Adjust(ctx context.Context, id uint, delta int64) (int64, error) {
	var stock int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).
			Where("id = ? AND stock + ? >= 0", id, delta).
			UpdateColumn("stock", gorm.Expr("stock + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrShort(tx, id, "")
		}
		return tx.Model(&model.Product{}).Select("stock").Where("id = ?", id).Scan(&stock).Error
	})
	return stock, err
}

// SetStock overwrites stock with an absolute value.
func (s *ProductStore) SetStock(ctx context.Context, id uint, stock int64) error {
	if stock < 0 {
		return ErrInvalidStock
	}
	res := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", stock)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func missingOrShort(tx *gorm.DB, id uint, name string) error {
	var p model.Product
	if err := tx.Select("id", "name").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return err
	}
	if name == "" {
		name = p.Name
	}
	return &InsufficientStockError{ProductID: id, Name: name}
}
