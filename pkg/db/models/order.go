package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/enums"
)

// Order is created atomically with its items at checkout and is never
// deleted afterwards, only transitioned.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;uniqueIndex;not null"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	ShopID      uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index"`
	AddressID   uuid.UUID `gorm:"column:address_id;type:uuid;not null"`

	OrderStatus   enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'PENDING'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`

	SubtotalCents     int64 `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int64 `gorm:"column:discount_cents;not null;default:0"`
	ShippingCostCents int64 `gorm:"column:shipping_cost_cents;not null;default:0"`
	TaxCents          int64 `gorm:"column:tax_cents;not null;default:0"`
	TotalCents        int64 `gorm:"column:total_cents;not null"`

	CouponCode          *string `gorm:"column:coupon_code"`
	CouponDiscountCents *int64  `gorm:"column:coupon_discount_cents"`

	StripePaymentID *string `gorm:"column:stripe_payment_id;index"`
	TransactionID   *string `gorm:"column:transaction_id"`
	CustomerNote    *string `gorm:"column:customer_note"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	ShippedAt   *time.Time `gorm:"column:shipped_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
