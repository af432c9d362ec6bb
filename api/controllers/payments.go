package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/api/responses"
	"github.com/auracommerce/aura-backend/api/validators"
	"github.com/auracommerce/aura-backend/internal/payments"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

type createIntentRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// PaymentIntentCreate creates or reuses a gateway payment intent for a card
// order and returns its client secret.
func PaymentIntentCreate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.OrderID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderId required"))
			return
		}

		intent, err := svc.CreateIntentForOrder(r.Context(), actor, payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// PaymentRefund runs the full refund path for one order. Admin only.
func PaymentRefund(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuidParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.RefundOrder(r.Context(), orderID, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
