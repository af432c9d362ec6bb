package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/api/middleware"
	"github.com/auracommerce/aura-backend/api/validators"
	"github.com/auracommerce/aura-backend/internal/orders"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

func actorFrom(r *http.Request) (orders.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id").
			WithDetails(map[string]any{"param": name})
	}
	return id, nil
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}, nil
}

// listEnvelope pairs list payloads with pagination metadata.
type listEnvelope struct {
	Items any             `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}
