package model

import "time"

type NotificationKind string

const (
	NotifyPaymentApproved NotificationKind = "payment_approved"
	NotifyOrderConfirmed  NotificationKind = "order_confirmed"
	NotifyOrderShipped    NotificationKind = "order_shipped"
	NotifyOrderDelivered  NotificationKind = "order_delivered"
	NotifyOrderCanceled   NotificationKind = "order_canceled"
)

// Notification is a user-facing message about an order transition. The
// (order_id, kind) pair is unique so a transition notifies at most once.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID  string           `gorm:"size:64;not null;index" json:"user_id"`
	OrderID string           `gorm:"size:36;not null;uniqueIndex:idx_notification_order_kind" json:"order_id"`
	Kind    NotificationKind `gorm:"size:32;not null;uniqueIndex:idx_notification_order_kind" json:"kind"`
	Read    bool             `gorm:"not null;default:false" json:"read"`
	ReadAt  *time.Time       `json:"read_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }
