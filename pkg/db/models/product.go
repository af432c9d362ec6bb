package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/enums"
)

// Product holds the catalog fields the checkout core reads and the stock
// counters it mutates. Catalog management itself lives elsewhere.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID         uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	CategoryID     uuid.UUID           `gorm:"column:category_id;type:uuid;not null;index"`
	Name           string              `gorm:"column:name;not null"`
	SKU            string              `gorm:"column:sku;not null"`
	Image          *string             `gorm:"column:image"`
	Status         enums.ProductStatus `gorm:"column:status;type:text;not null;default:'DRAFT'"`
	BasePriceCents int64               `gorm:"column:base_price_cents;not null"`
	SalePriceCents *int64              `gorm:"column:sale_price_cents"`
	Stock          int                 `gorm:"column:stock;not null;default:0"`
	SoldCount      int                 `gorm:"column:sold_count;not null;default:0"`
	Variants       []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectivePriceCents is the unit price when no variant is selected.
func (p Product) EffectivePriceCents() int64 {
	if p.SalePriceCents != nil {
		return *p.SalePriceCents
	}
	return p.BasePriceCents
}
