package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OrderItem is the immutable snapshot of a purchased line, independent of
// later catalog edits.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	SKU         string          `gorm:"column:sku;not null"`
	Image       *string         `gorm:"column:image"`
	Quantity    int             `gorm:"column:quantity;not null"`
	PriceCents  int64           `gorm:"column:price_cents;not null"`
	TotalCents  int64           `gorm:"column:total_cents;not null"`
	VariantInfo json.RawMessage `gorm:"column:variant_info;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// HasVariant reports whether the line was purchased against a product variant.
func (i OrderItem) HasVariant() bool {
	return len(i.VariantInfo) > 0
}
