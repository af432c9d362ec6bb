package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

// Actor identifies the authenticated caller for scoping reads.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Service exposes scoped order reads. Status mutations live in the
// reconciliation package.
type Service interface {
	List(ctx context.Context, actor Actor, params pagination.Params) ([]models.Order, pagination.Meta, error)
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo Repository
}

// NewService builds an order read service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	return &service{repo: repo}, nil
}

// List returns the actor's orders: their own for users, their shop's for
// vendors, everything for admins.
func (s *service) List(ctx context.Context, actor Actor, params pagination.Params) ([]models.Order, pagination.Meta, error) {
	var filter Filter
	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleVendor:
		shop, err := s.repo.ShopByVendor(ctx, actor.UserID)
		if err != nil {
			return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor shop")
		}
		if shop == nil {
			return []models.Order{}, pagination.NewMeta(params, 0), nil
		}
		filter.ShopID = &shop.ID
	default:
		filter.UserID = &actor.UserID
	}

	orders, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, pagination.NewMeta(params, total), nil
}

// Get returns one order if the actor may see it; an invisible order reads as
// not found rather than forbidden.
func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	var shop *models.Shop
	if actor.Role == enums.UserRoleVendor {
		shop, err = s.repo.ShopByVendor(ctx, actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor shop")
		}
	}
	if !visibleTo(*order, actor.UserID, actor.Role, shop) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}
