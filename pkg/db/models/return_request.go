package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/enums"
)

// ReturnRequest references one order; at most one non-terminal request may
// exist per order at a time.
type ReturnRequest struct {
	ID      uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	UserID  uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Reason  string             `gorm:"column:reason;not null"`
	Note    *string            `gorm:"column:note"`
	Status  enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'REQUESTED'"`

	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	ReceivedAt  *time.Time `gorm:"column:received_at"`
	RefundedAt  *time.Time `gorm:"column:refunded_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	Items []ReturnItem `gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`
	Order *Order       `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ReturnItem ties a return request to an order item. Current policy requires
// the returned quantities to cover the full order.
type ReturnItem struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnRequestID uuid.UUID  `gorm:"column:return_request_id;type:uuid;not null;index"`
	OrderItemID     uuid.UUID  `gorm:"column:order_item_id;type:uuid;not null"`
	Quantity        int        `gorm:"column:quantity;not null"`
	OrderItem       *OrderItem `gorm:"foreignKey:OrderItemID"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}
