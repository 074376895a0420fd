package store

import (
	"context"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db, now: time.Now}
}

// Create inserts n unless a notification of the same kind already exists
// for the order. created reports whether a row was written.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) (created bool, err error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *NotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var list []model.Notification
	err := q.Order("created_at DESC, id DESC").Find(&list).Error
	return list, err
}

func (s *NotificationStore) CountByOrder(ctx context.Context, orderID string, kind model.NotificationKind) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("order_id = ? AND kind = ?", orderID, kind).
		Count(&n).Error
	return n, err
}

// SetRead marks a notification read or unread. Only the owner may do so;
// anyone else gets ErrNotFound.
func (s *NotificationStore) SetRead(ctx context.Context, userID string, id uint, read bool) (*model.Notification, error) {
	var readAt *time.Time
	if read {
		t := s.now()
		readAt = &t
	}
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"read": read, "read_at": readAt})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var n model.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (s *NotificationStore) Delete(ctx context.Context, userID string, id uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
