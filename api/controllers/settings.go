package controllers

import (
	"net/http"

	"github.com/auracommerce/aura-backend/api/responses"
	"github.com/auracommerce/aura-backend/api/validators"
	"github.com/auracommerce/aura-backend/internal/settings"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

type updateSettingsRequest struct {
	ShippingThresholdCents *int64   `json:"shippingThreshold,omitempty" validate:"omitempty,min=0"`
	BaseShippingCostCents  *int64   `json:"baseShippingCost,omitempty" validate:"omitempty,min=0"`
	TaxRate                *float64 `json:"taxRate,omitempty" validate:"omitempty,min=0,max=1"`
	ReturnWindowDays       *int     `json:"returnWindowDays,omitempty" validate:"omitempty,min=0"`
}

// SettingsGet returns the storefront settings row. Admin only.
func SettingsGet(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		row, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

// SettingsUpdate edits the storefront settings. Admin only.
func SettingsUpdate(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateSettingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Update(r.Context(), settings.UpdateInput{
			ShippingThresholdCents: payload.ShippingThresholdCents,
			BaseShippingCostCents:  payload.BaseShippingCostCents,
			TaxRate:                payload.TaxRate,
			ReturnWindowDays:       payload.ReturnWindowDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}
