package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

const cacheKey = "store_settings"

// Service reads and mutates the global store settings. Reads are cached for
// a short TTL because every checkout and return consults them.
type Service interface {
	Get(ctx context.Context) (models.StoreSettings, error)
	Update(ctx context.Context, input UpdateInput) (models.StoreSettings, error)
	Invalidate()
}

// UpdateInput carries the admin-editable settings fields. Nil fields keep
// their current value.
type UpdateInput struct {
	ShippingThresholdCents *int64
	BaseShippingCostCents  *int64
	TaxRate                *float64
	ReturnWindowDays       *int
}

type service struct {
	repo  Repository
	cache *gocache.Cache
}

// NewService builds a settings service with the given cache TTL.
func NewService(repo Repository, ttl time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}, nil
}

// Get returns the settings row, creating it with defaults on first read.
func (s *service) Get(ctx context.Context) (models.StoreSettings, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		if row, ok := cached.(models.StoreSettings); ok {
			return row, nil
		}
	}

	row, err := s.repo.First(ctx)
	if err != nil {
		return models.StoreSettings{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store settings")
	}
	if row == nil {
		fresh := models.DefaultStoreSettings()
		fresh.ID = uuid.New()
		if err := s.repo.Create(ctx, &fresh); err != nil {
			return models.StoreSettings{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create default store settings")
		}
		row = &fresh
	}

	s.cache.SetDefault(cacheKey, *row)
	return *row, nil
}

// Update applies the provided fields and invalidates the cache.
func (s *service) Update(ctx context.Context, input UpdateInput) (models.StoreSettings, error) {
	if input.ShippingThresholdCents != nil && *input.ShippingThresholdCents < 0 {
		return models.StoreSettings{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping threshold must not be negative")
	}
	if input.BaseShippingCostCents != nil && *input.BaseShippingCostCents < 0 {
		return models.StoreSettings{}, pkgerrors.New(pkgerrors.CodeValidation, "base shipping cost must not be negative")
	}
	if input.TaxRate != nil && (*input.TaxRate < 0 || *input.TaxRate > 1) {
		return models.StoreSettings{}, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must be between 0 and 1")
	}
	if input.ReturnWindowDays != nil && *input.ReturnWindowDays < 0 {
		return models.StoreSettings{}, pkgerrors.New(pkgerrors.CodeValidation, "return window must not be negative")
	}

	s.Invalidate()
	current, err := s.Get(ctx)
	if err != nil {
		return models.StoreSettings{}, err
	}

	if input.ShippingThresholdCents != nil {
		current.ShippingThresholdCents = *input.ShippingThresholdCents
	}
	if input.BaseShippingCostCents != nil {
		current.BaseShippingCostCents = *input.BaseShippingCostCents
	}
	if input.TaxRate != nil {
		current.TaxRate = *input.TaxRate
	}
	if input.ReturnWindowDays != nil {
		current.ReturnWindowDays = *input.ReturnWindowDays
	}

	if err := s.repo.Save(ctx, &current); err != nil {
		return models.StoreSettings{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save store settings")
	}

	s.Invalidate()
	return current, nil
}

// Invalidate drops the cached row so the next read hits the database.
func (s *service) Invalidate() {
	s.cache.Delete(cacheKey)
}
