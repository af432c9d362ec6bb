package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/auracommerce/aura-backend/pkg/db"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

// CreateInput carries the fields for a new coupon.
type CreateInput struct {
	Code                 string
	Description          *string
	Type                 enums.CouponType
	Value                int64
	MinPurchaseCents     *int64
	MaxDiscountCents     *int64
	UsageLimit           *int
	UsagePerUser         *int
	StartDate            time.Time
	EndDate              time.Time
	Status               enums.CouponStatus
	ApplicableProducts   []string
	ApplicableCategories []string
}

// UpdateInput carries optional coupon mutations. Nil fields keep their
// current value; scope slices replace the stored list when non-nil.
type UpdateInput struct {
	Code                 *string
	Description          *string
	Type                 *enums.CouponType
	Value                *int64
	MinPurchaseCents     *int64
	MaxDiscountCents     *int64
	UsageLimit           *int
	UsagePerUser         *int
	StartDate            *time.Time
	EndDate              *time.Time
	Status               *enums.CouponStatus
	ApplicableProducts   []string
	ApplicableCategories []string
}

// Service exposes coupon administration plus a read-only preview that runs
// the same evaluation checkout uses.
type Service interface {
	List(ctx context.Context, params pagination.Params) ([]models.Coupon, pagination.Meta, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Preview(ctx context.Context, code string, userID uuid.UUID, lines []CartLine, shippingCents int64) (*Evaluation, error)
}

type service struct {
	repo      Repository
	evaluator Evaluator
}

// NewService builds a coupon service with the required dependencies.
func NewService(repo Repository, evaluator Evaluator) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	if evaluator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon evaluator required")
	}
	return &service{repo: repo, evaluator: evaluator}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) ([]models.Coupon, pagination.Meta, error) {
	coupons, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return coupons, pagination.NewMeta(params, total), nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return coupon, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	if err := validateCouponWindow(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon type")
	}
	if input.Value < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon value must not be negative")
	}
	status := input.Status
	if status == "" {
		status = enums.CouponStatusActive
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon status")
	}

	perUser := input.UsagePerUser
	if perUser == nil {
		one := 1
		perUser = &one
	}

	coupon := models.Coupon{
		ID:                   uuid.New(),
		Code:                 strings.ToUpper(strings.TrimSpace(input.Code)),
		Description:          input.Description,
		Type:                 input.Type,
		Value:                input.Value,
		MinPurchaseCents:     input.MinPurchaseCents,
		MaxDiscountCents:     input.MaxDiscountCents,
		UsageLimit:           input.UsageLimit,
		UsagePerUser:         perUser,
		StartDate:            input.StartDate,
		EndDate:              input.EndDate,
		Status:               status,
		ApplicableProducts:   pq.StringArray(input.ApplicableProducts),
		ApplicableCategories: pq.StringArray(input.ApplicableCategories),
	}
	if coupon.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}

	if err := s.repo.Create(ctx, &coupon); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return &coupon, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Coupon, error) {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}

	if input.Code != nil {
		coupon.Code = strings.ToUpper(strings.TrimSpace(*input.Code))
	}
	if input.Description != nil {
		coupon.Description = input.Description
	}
	if input.Type != nil {
		if !input.Type.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon type")
		}
		coupon.Type = *input.Type
	}
	if input.Value != nil {
		if *input.Value < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon value must not be negative")
		}
		coupon.Value = *input.Value
	}
	if input.MinPurchaseCents != nil {
		coupon.MinPurchaseCents = input.MinPurchaseCents
	}
	if input.MaxDiscountCents != nil {
		coupon.MaxDiscountCents = input.MaxDiscountCents
	}
	if input.UsageLimit != nil {
		coupon.UsageLimit = input.UsageLimit
	}
	if input.UsagePerUser != nil {
		coupon.UsagePerUser = input.UsagePerUser
	}
	if input.StartDate != nil {
		coupon.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		coupon.EndDate = *input.EndDate
	}
	if err := validateCouponWindow(coupon.StartDate, coupon.EndDate); err != nil {
		return nil, err
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon status")
		}
		coupon.Status = *input.Status
	}
	if input.ApplicableProducts != nil {
		coupon.ApplicableProducts = pq.StringArray(input.ApplicableProducts)
	}
	if input.ApplicableCategories != nil {
		coupon.ApplicableCategories = pq.StringArray(input.ApplicableCategories)
	}

	if err := s.repo.Save(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	return coupon, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	return nil
}

// Preview runs the checkout evaluation without recording usage.
func (s *service) Preview(ctx context.Context, code string, userID uuid.UUID, lines []CartLine, shippingCents int64) (*Evaluation, error) {
	return s.evaluator.Evaluate(ctx, nil, code, userID, lines, shippingCents)
}

func validateCouponWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon start and end dates required")
	}
	if end.Before(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon end date must not precede start date")
	}
	return nil
}
