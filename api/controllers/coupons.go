package controllers

import (
	"net/http"
	"time"

	"github.com/auracommerce/aura-backend/api/responses"
	"github.com/auracommerce/aura-backend/api/validators"
	"github.com/auracommerce/aura-backend/internal/cart"
	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

type createCouponRequest struct {
	Code                 string    `json:"code" validate:"required,min=3,max=40"`
	Description          *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Type                 string    `json:"type" validate:"required"`
	Value                int64     `json:"value" validate:"min=0"`
	MinPurchaseCents     *int64    `json:"minPurchase,omitempty" validate:"omitempty,min=0"`
	MaxDiscountCents     *int64    `json:"maxDiscount,omitempty" validate:"omitempty,min=0"`
	UsageLimit           *int      `json:"usageLimit,omitempty" validate:"omitempty,min=1"`
	UsagePerUser         *int      `json:"usagePerUser,omitempty" validate:"omitempty,min=1"`
	StartDate            time.Time `json:"startDate" validate:"required"`
	EndDate              time.Time `json:"endDate" validate:"required"`
	Status               string    `json:"status,omitempty"`
	ApplicableProducts   []string  `json:"applicableProducts,omitempty"`
	ApplicableCategories []string  `json:"applicableCategories,omitempty"`
}

type updateCouponRequest struct {
	Code                 *string    `json:"code,omitempty" validate:"omitempty,min=3,max=40"`
	Description          *string    `json:"description,omitempty" validate:"omitempty,max=500"`
	Type                 *string    `json:"type,omitempty"`
	Value                *int64     `json:"value,omitempty" validate:"omitempty,min=0"`
	MinPurchaseCents     *int64     `json:"minPurchase,omitempty" validate:"omitempty,min=0"`
	MaxDiscountCents     *int64     `json:"maxDiscount,omitempty" validate:"omitempty,min=0"`
	UsageLimit           *int       `json:"usageLimit,omitempty" validate:"omitempty,min=1"`
	UsagePerUser         *int       `json:"usagePerUser,omitempty" validate:"omitempty,min=1"`
	StartDate            *time.Time `json:"startDate,omitempty"`
	EndDate              *time.Time `json:"endDate,omitempty"`
	Status               *string    `json:"status,omitempty"`
	ApplicableProducts   []string   `json:"applicableProducts,omitempty"`
	ApplicableCategories []string   `json:"applicableCategories,omitempty"`
}

type previewCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type couponPreviewResponse struct {
	Code          string `json:"code"`
	DiscountCents int64  `json:"discount"`
	SubtotalCents int64  `json:"subtotal"`
}

// CouponList returns all coupons, paginated. Admin only.
func CouponList(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, meta, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listEnvelope{Items: items, Meta: meta})
	}
}

// CouponCreate registers a new coupon. Admin only.
func CouponCreate(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		couponType, err := enums.ParseCouponType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon type"))
			return
		}
		status := enums.CouponStatusActive
		if payload.Status != "" {
			status, err = enums.ParseCouponStatus(payload.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon status"))
				return
			}
		}

		coupon, err := svc.Create(r.Context(), coupons.CreateInput{
			Code:                 payload.Code,
			Description:          payload.Description,
			Type:                 couponType,
			Value:                payload.Value,
			MinPurchaseCents:     payload.MinPurchaseCents,
			MaxDiscountCents:     payload.MaxDiscountCents,
			UsageLimit:           payload.UsageLimit,
			UsagePerUser:         payload.UsagePerUser,
			StartDate:            payload.StartDate,
			EndDate:              payload.EndDate,
			Status:               status,
			ApplicableProducts:   payload.ApplicableProducts,
			ApplicableCategories: payload.ApplicableCategories,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, coupon)
	}
}

// CouponUpdate edits an existing coupon. Admin only.
func CouponUpdate(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couponID, err := uuidParam(r, "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := coupons.UpdateInput{
			Code:                 payload.Code,
			Description:          payload.Description,
			Value:                payload.Value,
			MinPurchaseCents:     payload.MinPurchaseCents,
			MaxDiscountCents:     payload.MaxDiscountCents,
			UsageLimit:           payload.UsageLimit,
			UsagePerUser:         payload.UsagePerUser,
			StartDate:            payload.StartDate,
			EndDate:              payload.EndDate,
			ApplicableProducts:   payload.ApplicableProducts,
			ApplicableCategories: payload.ApplicableCategories,
		}
		if payload.Type != nil {
			couponType, err := enums.ParseCouponType(*payload.Type)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon type"))
				return
			}
			input.Type = &couponType
		}
		if payload.Status != nil {
			status, err := enums.ParseCouponStatus(*payload.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon status"))
				return
			}
			input.Status = &status
		}

		coupon, err := svc.Update(r.Context(), couponID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// CouponDelete removes a coupon. Admin only.
func CouponDelete(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couponID, err := uuidParam(r, "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), couponID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// CouponPreview evaluates a coupon against the caller's current cart without
// consuming usage.
func CouponPreview(svc coupons.Service, cartSvc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload previewCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := cartSvc.Get(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(view.Items) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
			return
		}

		lines := make([]coupons.CartLine, 0, len(view.Items))
		for _, item := range view.Items {
			lines = append(lines, coupons.CartLine{
				ProductID:      item.ProductID,
				CategoryID:     item.CategoryID,
				LineTotalCents: item.LineTotalCents,
			})
		}

		evaluation, err := svc.Preview(r.Context(), payload.Code, actor.UserID, lines, 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, couponPreviewResponse{
			Code:          evaluation.Coupon.Code,
			DiscountCents: evaluation.DiscountCents,
			SubtotalCents: view.Subtotal,
		})
	}
}
