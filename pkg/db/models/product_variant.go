package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProductVariant carries its own stock counter and an optional price that
// overrides the parent product's.
type ProductVariant struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	SKU        string          `gorm:"column:sku;not null;index"`
	PriceCents *int64          `gorm:"column:price_cents"`
	Stock      int             `gorm:"column:stock;not null;default:0"`
	Attributes json.RawMessage `gorm:"column:attributes;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
