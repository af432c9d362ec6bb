package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/api/responses"
	"github.com/auracommerce/aura-backend/api/validators"
	checkoutsvc "github.com/auracommerce/aura-backend/internal/checkout"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

type createOrderRequest struct {
	AddressID     uuid.UUID `json:"addressId" validate:"required"`
	PaymentMethod string    `json:"paymentMethod" validate:"required"`
	CouponCode    string    `json:"couponCode,omitempty"`
	CustomerNote  *string   `json:"customerNote,omitempty" validate:"omitempty,max=1000"`
}

// CheckoutCreateOrder submits the caller's cart as an order.
func CheckoutCreateOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.AddressID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "addressId required"))
			return
		}
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.CreateOrder(r.Context(), actor.UserID, checkoutsvc.CreateOrderInput{
			AddressID:     payload.AddressID,
			PaymentMethod: method,
			CouponCode:    payload.CouponCode,
			CustomerNote:  payload.CustomerNote,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
