package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

// Gateway is the slice of the Stripe client the payment service consumes.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// Intent is the client-facing view of a payment intent. Only the client
// secret leaves the backend; raw gateway objects do not.
type Intent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
}

// Service creates and reuses payment intents for card orders.
type Service interface {
	CreateIntentForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*Intent, error)
}

type service struct {
	repo     orders.Repository
	reads    orders.Service
	gateway  Gateway
	currency string
	logg     *logger.Logger
}

// NewService wires the payment service. The logger is optional.
func NewService(repo orders.Repository, reads orders.Service, gateway Gateway, currency string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if reads == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if currency == "" {
		currency = "usd"
	}
	return &service{repo: repo, reads: reads, gateway: gateway, currency: currency, logg: logg}, nil
}

// CreateIntentForOrder returns a payment intent for a pending card order,
// reusing the stored intent when one is still open.
func (s *service) CreateIntentForOrder(ctx context.Context, actor orders.Actor, orderID uuid.UUID) (*Intent, error) {
	order, err := s.reads.Get(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod != enums.PaymentMethodCard {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not payable by card")
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if order.OrderStatus.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer payable")
	}

	if order.StripePaymentID != nil && *order.StripePaymentID != "" {
		existing, err := s.gateway.RetrieveIntent(ctx, *order.StripePaymentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve payment intent")
		}
		if existing.Status != stripe.PaymentIntentStatusCanceled {
			return intentView(existing), nil
		}
	}

	created, err := s.gateway.CreateIntent(ctx, order.TotalCents, s.currency, map[string]string{
		"orderId": order.ID.String(),
		"userId":  order.UserID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	if err := s.repo.UpdateFields(ctx, order.ID, map[string]any{"stripe_payment_id": created.ID}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent id")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":  order.ID.String(),
			"intent_id": created.ID,
		})
		s.logg.Info(logCtx, "payment intent created")
	}
	return intentView(created), nil
}

func intentView(intent *stripe.PaymentIntent) *Intent {
	return &Intent{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}
}
