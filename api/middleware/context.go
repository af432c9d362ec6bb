package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated actor, or ok=false when the
// request never passed the auth middleware.
func ActorFromContext(ctx context.Context) (orders.Actor, bool) {
	if ctx == nil {
		return orders.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(orders.Actor)
	return actor, ok
}

// WithActor injects the actor into the context. Handler tests use this to
// bypass token minting.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.UserRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, orders.Actor{UserID: userID, Role: role})
}
