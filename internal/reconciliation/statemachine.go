package reconciliation

import (
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

// Payment gateway event types this handler understands. Anything else is a
// deliberate no-op.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// Transition is one resolved state change. Compensation flags are derived
// from the order's previous state, so applying the same event again resolves
// to a no-op instead of a second restoration.
type Transition struct {
	OrderStatus      enums.OrderStatus
	PaymentStatus    enums.PaymentStatus
	SetPaymentStatus bool

	StampPaidAt      bool
	StampShippedAt   bool
	StampDeliveredAt bool
	StampCancelledAt bool

	RestoreInventory bool
	ReleaseCoupon    bool
}

// resolveEvent maps (current order state, gateway event) to a transition.
// ok=false means the event must be acknowledged without applying anything.
func resolveEvent(event string, order models.Order) (Transition, bool) {
	switch event {
	case EventPaymentSucceeded:
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return Transition{}, false
		}
		return Transition{
			OrderStatus:      enums.OrderStatusConfirmed,
			PaymentStatus:    enums.PaymentStatusPaid,
			SetPaymentStatus: true,
			StampPaidAt:      true,
		}, true

	case EventPaymentFailed:
		if order.PaymentStatus != enums.PaymentStatusPending || order.OrderStatus == enums.OrderStatusCancelled {
			return Transition{}, false
		}
		return Transition{
			OrderStatus:      enums.OrderStatusCancelled,
			PaymentStatus:    enums.PaymentStatusFailed,
			SetPaymentStatus: true,
			StampCancelledAt: true,
			RestoreInventory: true,
			ReleaseCoupon:    true,
		}, true

	case EventChargeRefunded:
		if order.PaymentStatus == enums.PaymentStatusRefunded {
			return Transition{}, false
		}
		return Transition{
			OrderStatus:      enums.OrderStatusRefunded,
			PaymentStatus:    enums.PaymentStatusRefunded,
			SetPaymentStatus: true,
			StampCancelledAt: true,
			RestoreInventory: true,
		}, true

	default:
		return Transition{}, false
	}
}

var forwardRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusConfirmed:  1,
	enums.OrderStatusProcessing: 2,
	enums.OrderStatusShipped:    3,
	enums.OrderStatusDelivered:  4,
}

// resolveManual maps a requested status change against the order's current
// state. ok=false with a nil error means the request is a redundant no-op.
func resolveManual(target enums.OrderStatus, order models.Order) (Transition, bool, error) {
	switch target {
	case enums.OrderStatusCancelled:
		if order.OrderStatus == enums.OrderStatusCancelled {
			return Transition{}, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
		}
		if order.OrderStatus == enums.OrderStatusRefunded {
			return Transition{}, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order already refunded")
		}
		t := Transition{
			OrderStatus:      enums.OrderStatusCancelled,
			StampCancelledAt: true,
		}
		if order.PaymentStatus == enums.PaymentStatusPending {
			t.PaymentStatus = enums.PaymentStatusFailed
			t.SetPaymentStatus = true
		}
		// a paid order keeps its stock reserved until the refund path runs
		if order.PaymentStatus != enums.PaymentStatusPaid {
			t.RestoreInventory = true
			t.ReleaseCoupon = true
		}
		return t, true, nil

	case enums.OrderStatusRefunded:
		if order.PaymentStatus == enums.PaymentStatusRefunded {
			return Transition{}, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order already refunded")
		}
		return Transition{
			OrderStatus:      enums.OrderStatusRefunded,
			PaymentStatus:    enums.PaymentStatusRefunded,
			SetPaymentStatus: true,
			StampCancelledAt: true,
			RestoreInventory: true,
		}, true, nil

	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing,
		enums.OrderStatusShipped, enums.OrderStatusDelivered:
		currentRank, ok := forwardRank[order.OrderStatus]
		if !ok {
			return Transition{}, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order is in a terminal state")
		}
		targetRank := forwardRank[target]
		if targetRank == currentRank {
			return Transition{}, false, nil
		}
		if targetRank < currentRank {
			return Transition{}, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order status cannot move backwards")
		}
		t := Transition{OrderStatus: target}
		switch target {
		case enums.OrderStatusShipped:
			t.StampShippedAt = true
		case enums.OrderStatusDelivered:
			t.StampDeliveredAt = true
		}
		return t, true, nil

	default:
		return Transition{}, false, pkgerrors.New(pkgerrors.CodeValidation, "unsupported order status")
	}
}
