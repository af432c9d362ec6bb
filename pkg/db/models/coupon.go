package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/auracommerce/aura-backend/pkg/enums"
)

// Coupon codes are stored upper-cased; an empty scope list means the coupon
// applies to the whole cart.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string             `gorm:"column:code;uniqueIndex;not null"`
	Description      *string            `gorm:"column:description"`
	Type             enums.CouponType   `gorm:"column:type;type:text;not null"`
	Value            int64              `gorm:"column:value;not null"`
	MinPurchaseCents *int64             `gorm:"column:min_purchase_cents"`
	MaxDiscountCents *int64             `gorm:"column:max_discount_cents"`
	UsageLimit       *int               `gorm:"column:usage_limit"`
	UsagePerUser     *int               `gorm:"column:usage_per_user"`
	StartDate        time.Time          `gorm:"column:start_date;not null"`
	EndDate          time.Time          `gorm:"column:end_date;not null"`
	Status           enums.CouponStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`

	ApplicableProducts   pq.StringArray `gorm:"column:applicable_products;type:text[]"`
	ApplicableCategories pq.StringArray `gorm:"column:applicable_categories;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsScoped reports whether the coupon is restricted to particular products
// or categories.
func (c Coupon) IsScoped() bool {
	return len(c.ApplicableProducts) > 0 || len(c.ApplicableCategories) > 0
}

// CouponUsage records one redemption per (coupon, order). Rows are deleted
// as the compensating action when the order fails or is cancelled.
type CouponUsage struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID      uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;index"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	DiscountCents int64     `gorm:"column:discount_cents;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
