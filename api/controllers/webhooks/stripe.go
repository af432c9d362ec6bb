package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/auracommerce/aura-backend/api/responses"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
	"github.com/auracommerce/aura-backend/pkg/metrics"
	pkgredis "github.com/auracommerce/aura-backend/pkg/redis"
)

const eventDedupTTL = 7 * 24 * time.Hour

type Verifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

// Guard deduplicates webhook deliveries by event id. A failed handler run
// releases the mark so Stripe's retry can be processed.
type Guard struct {
	store pkgredis.IdempotencyStore
}

func NewGuard(store pkgredis.IdempotencyStore) *Guard {
	return &Guard{store: store}
}

// CheckAndMark returns true when the event was already processed.
func (g *Guard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if g == nil || g.store == nil {
		return false, nil
	}
	stored, err := g.store.SetNX(ctx, g.key(eventID), "1", eventDedupTTL)
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return !stored, nil
}

func (g *Guard) Release(ctx context.Context, eventID string) error {
	if g == nil || g.store == nil {
		return nil
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID string) string {
	return g.store.IdempotencyKey("stripe_webhook", eventID)
}

// StripeWebhook verifies, deduplicates, and applies gateway payment events.
func StripeWebhook(svc reconciliation.Service, client Verifier, guard *Guard, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := client.VerifyWebhook(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				if webhookMetrics != nil {
					webhookMetrics.IncEvent(string(event.Type), "duplicate")
				}
				responses.WriteSuccess(w, map[string]string{"received": event.ID})
				return
			}
		}

		paymentEvent, err := translateEvent(event)
		if err != nil {
			if guard != nil {
				_ = guard.Release(ctx, event.ID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.HandleEvent(ctx, paymentEvent)
		if err != nil {
			if guard != nil {
				_ = guard.Release(ctx, event.ID)
			}
			if webhookMetrics != nil {
				webhookMetrics.IncEvent(string(event.Type), "error")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if webhookMetrics != nil {
			webhookMetrics.IncEvent(string(event.Type), string(outcome))
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
				"outcome":    string(outcome),
			})
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]string{"received": event.ID})
	}
}

// translateEvent maps the raw Stripe event to the gateway-neutral form the
// reconciliation handler consumes. Unknown types pass through with their raw
// name so the handler can acknowledge them.
func translateEvent(event stripe.Event) (reconciliation.PaymentEvent, error) {
	out := reconciliation.PaymentEvent{Type: string(event.Type)}

	switch string(event.Type) {
	case reconciliation.EventPaymentSucceeded, reconciliation.EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		out.IntentID = intent.ID
		if intent.LatestCharge != nil {
			out.TransactionID = intent.LatestCharge.ID
		}
	case reconciliation.EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		if charge.PaymentIntent != nil {
			out.IntentID = charge.PaymentIntent.ID
		}
		out.TransactionID = charge.ID
	}
	return out, nil
}
