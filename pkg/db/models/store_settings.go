package models

import (
	"time"

	"github.com/google/uuid"
)

// Default store settings, used when the singleton row is created lazily.
const (
	DefaultShippingThresholdCents = int64(10000)
	DefaultBaseShippingCostCents  = int64(999)
	DefaultTaxRate                = float64(0)
	DefaultReturnWindowDays       = 14
)

// StoreSettings is a single global row read at the start of every checkout
// and return, mutated only by the admin settings operation.
type StoreSettings struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShippingThresholdCents int64     `gorm:"column:shipping_threshold_cents;not null"`
	BaseShippingCostCents  int64     `gorm:"column:base_shipping_cost_cents;not null"`
	TaxRate                float64   `gorm:"column:tax_rate;not null"`
	ReturnWindowDays       int       `gorm:"column:return_window_days;not null"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DefaultStoreSettings returns the row inserted on first read.
func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		ShippingThresholdCents: DefaultShippingThresholdCents,
		BaseShippingCostCents:  DefaultBaseShippingCostCents,
		TaxRate:                DefaultTaxRate,
		ReturnWindowDays:       DefaultReturnWindowDays,
	}
}
