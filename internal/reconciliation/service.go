package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/inventory"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
)

// Outcome classifies what HandleEvent did, for logging and metrics.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeIgnored Outcome = "ignored"
)

// PaymentEvent is the gateway-neutral view of a webhook event.
type PaymentEvent struct {
	Type          string
	IntentID      string
	TransactionID string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type couponReleaser interface {
	WithTx(tx *gorm.DB) coupons.Repository
}

// Refunder issues a refund against the payment gateway by intent id.
type Refunder interface {
	Refund(ctx context.Context, intentID string) error
}

// Notifier delivers customer-facing order updates. Implementations must be
// fire-and-forget: a failed notification never fails the transition.
type Notifier interface {
	OrderUpdated(ctx context.Context, order models.Order, event string)
}

// Service applies payment events and status-change requests to orders.
type Service interface {
	HandleEvent(ctx context.Context, event PaymentEvent) (Outcome, error)
	UpdateOrderStatus(ctx context.Context, actor orders.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID, notify bool) (*models.Order, error)
}

type service struct {
	repo      orders.Repository
	reads     orders.Service
	tx        txRunner
	inventory inventory.Service
	coupons   couponReleaser
	refunder  Refunder
	notifier  Notifier
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the reconciliation handler with its collaborators.
func NewService(
	repo orders.Repository,
	reads orders.Service,
	tx txRunner,
	inv inventory.Service,
	coupons couponReleaser,
	refunder Refunder,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if reads == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if inv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon releaser required")
	}
	if refunder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refunder required")
	}
	return &service{
		repo:      repo,
		reads:     reads,
		tx:        tx,
		inventory: inv,
		coupons:   coupons,
		refunder:  refunder,
		notifier:  notifier,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// HandleEvent applies one gateway event. Unknown event types and orders the
// event no longer applies to are acknowledged as no-ops.
func (s *service) HandleEvent(ctx context.Context, event PaymentEvent) (Outcome, error) {
	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded:
	default:
		return OutcomeIgnored, nil
	}
	if event.IntentID == "" {
		return OutcomeIgnored, nil
	}

	var (
		outcome = OutcomeSkipped
		updated models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByStripePaymentID(ctx, event.IntentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by intent")
		}
		if order == nil {
			// intent we never issued, or the order was purged; ack it
			return nil
		}

		transition, ok := resolveEvent(event.Type, *order)
		if !ok {
			return nil
		}

		fields := s.fieldsFor(transition)
		if event.Type == EventPaymentSucceeded && event.TransactionID != "" {
			fields["transaction_id"] = event.TransactionID
		}
		if err := s.apply(ctx, tx, *order, transition, fields); err != nil {
			return err
		}

		outcome = OutcomeApplied
		updated = *order
		updated.OrderStatus = transition.OrderStatus
		if transition.SetPaymentStatus {
			updated.PaymentStatus = transition.PaymentStatus
		}
		return nil
	})
	if err != nil {
		return OutcomeSkipped, err
	}

	if outcome == OutcomeApplied {
		s.notify(ctx, updated, event.Type)
	} else if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"event_type": event.Type, "intent_id": event.IntentID})
		s.logg.Info(ctx, "payment event acknowledged without changes")
	}
	return outcome, nil
}

// UpdateOrderStatus applies a manual transition on behalf of the actor. The
// pre-transaction read only authorizes and routes; the transition itself is
// resolved against the row loaded inside the transaction, so a payment event
// committed in between cannot leak through a stale decision.
func (s *service) UpdateOrderStatus(ctx context.Context, actor orders.Actor, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	order, err := s.reads.Get(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if target == enums.OrderStatusRefunded && needsGatewayRefund(*order) {
		return s.RefundOrder(ctx, order.ID, true)
	}

	res, err := s.applyManual(ctx, order.ID, target, false, nil)
	if err != nil {
		return nil, err
	}
	if res.routeRefund {
		return s.RefundOrder(ctx, order.ID, true)
	}

	updated, err := s.repo.GetByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if res.applied {
		s.notify(ctx, *updated, "order."+string(target))
	}
	return updated, nil
}

// RefundOrder runs the refund path: gateway refund for paid card orders,
// then the REFUNDED transition with inventory restoration. notify=false
// suppresses the customer message when a return flow already sent one.
func (s *service) RefundOrder(ctx context.Context, orderID uuid.UUID, notify bool) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	// pre-flight guard so an already-refunded order fails before the
	// gateway call; the transaction re-resolves against current state
	if _, ok, err := resolveManual(enums.OrderStatusRefunded, *order); err != nil {
		return nil, err
	} else if !ok {
		return order, nil
	}

	if needsGatewayRefund(*order) {
		if err := s.refunder.Refund(ctx, *order.StripePaymentID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway refund")
		}
	}

	res, err := s.applyManual(ctx, order.ID, enums.OrderStatusRefunded, true, nil)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.GetByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if notify && res.applied {
		s.notify(ctx, *updated, "order.refunded")
	}
	return updated, nil
}

type manualResult struct {
	applied bool
	// routeRefund reports that the order turned out to be a captured card
	// payment, so the caller must run the gateway refund path instead.
	routeRefund bool
}

// applyManual resolves and applies a manual transition in one transaction,
// using the row as it exists inside that transaction. gatewaySettled marks
// that the caller already issued the gateway refund for a REFUNDED target.
func (s *service) applyManual(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, gatewaySettled bool, extra map[string]any) (manualResult, error) {
	var res manualResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		if target == enums.OrderStatusRefunded && !gatewaySettled && needsGatewayRefund(*order) {
			res.routeRefund = true
			return nil
		}

		transition, ok, err := resolveManual(target, *order)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		fields := s.fieldsFor(transition)
		for k, v := range extra {
			fields[k] = v
		}
		if err := s.apply(ctx, tx, *order, transition, fields); err != nil {
			return err
		}
		res.applied = true
		return nil
	})
	return res, err
}

func needsGatewayRefund(order models.Order) bool {
	return order.PaymentMethod == enums.PaymentMethodCard &&
		order.PaymentStatus == enums.PaymentStatusPaid &&
		order.StripePaymentID != nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, order models.Order, transition Transition, fields map[string]any) error {
	repo := s.repo.WithTx(tx)
	if err := repo.UpdateFields(ctx, order.ID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}

	if transition.RestoreInventory {
		lines := restoreLines(order.Items)
		if err := s.inventory.Restore(ctx, tx, lines); err != nil {
			return err
		}
	}
	if transition.ReleaseCoupon && order.CouponCode != nil {
		if err := s.coupons.WithTx(tx).DeleteUsageByOrderID(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon usage")
		}
	}
	return nil
}

func (s *service) fieldsFor(transition Transition) map[string]any {
	now := s.now().UTC()
	fields := map[string]any{"order_status": transition.OrderStatus}
	if transition.SetPaymentStatus {
		fields["payment_status"] = transition.PaymentStatus
	}
	if transition.StampPaidAt {
		fields["paid_at"] = now
	}
	if transition.StampShippedAt {
		fields["shipped_at"] = now
	}
	if transition.StampDeliveredAt {
		fields["delivered_at"] = now
	}
	if transition.StampCancelledAt {
		fields["cancelled_at"] = now
	}
	return fields
}

func (s *service) notify(ctx context.Context, order models.Order, event string) {
	if s.notifier == nil {
		return
	}
	s.notifier.OrderUpdated(ctx, order, event)
}

func restoreLines(items []models.OrderItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{
			ProductID:   item.ProductID,
			FromVariant: item.HasVariant(),
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
		})
	}
	return lines
}
