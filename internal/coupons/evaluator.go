package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

// CartLine is the pricing view of one cart item the evaluator needs.
type CartLine struct {
	ProductID      uuid.UUID
	CategoryID     uuid.UUID
	LineTotalCents int64
}

// Evaluation is the outcome of applying a coupon to a priced cart.
type Evaluation struct {
	Coupon                models.Coupon
	DiscountCents         int64
	EligibleSubtotalCents int64
}

// Evaluator validates a coupon against a cart and computes the discount. It
// must run inside the checkout transaction so usage counts stay consistent
// with the usage row written afterwards.
type Evaluator interface {
	Evaluate(ctx context.Context, tx *gorm.DB, code string, userID uuid.UUID, lines []CartLine, shippingCents int64) (*Evaluation, error)
}

type evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator builds the default coupon evaluator.
func NewEvaluator(repo Repository) (Evaluator, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	return &evaluator{repo: repo, now: time.Now}, nil
}

func (e *evaluator) Evaluate(ctx context.Context, tx *gorm.DB, code string, userID uuid.UUID, lines []CartLine, shippingCents int64) (*Evaluation, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}

	repo := e.repo.WithTx(tx)
	coupon, err := repo.GetByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon not found")
	}

	now := e.now()
	if coupon.Status != enums.CouponStatusActive || coupon.StartDate.After(now) || coupon.EndDate.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	}

	if coupon.UsageLimit != nil {
		count, err := repo.CountUsage(ctx, coupon.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage")
		}
		if count >= int64(*coupon.UsageLimit) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
		}
	}
	if coupon.UsagePerUser != nil {
		count, err := repo.CountUserUsage(ctx, coupon.ID, userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user coupon usage")
		}
		if count >= int64(*coupon.UsagePerUser) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon usage limit reached")
		}
	}

	var subtotal, eligible int64
	for _, line := range lines {
		subtotal += line.LineTotalCents
		if lineEligible(*coupon, line) {
			eligible += line.LineTotalCents
		}
	}

	discountBase := subtotal
	if coupon.IsScoped() {
		if eligible <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not applicable to items in cart")
		}
		discountBase = eligible
	}

	if coupon.MinPurchaseCents != nil && discountBase < *coupon.MinPurchaseCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart total does not meet coupon requirements")
	}

	discount := computeDiscount(*coupon, discountBase, shippingCents)
	if coupon.MaxDiscountCents != nil && discount > *coupon.MaxDiscountCents {
		discount = *coupon.MaxDiscountCents
	}

	// a discount may never exceed what it applies against
	cap := discountBase
	if coupon.Type == enums.CouponTypeFreeShipping {
		cap = discountBase + shippingCents
	}
	if discount > cap {
		discount = cap
	}

	return &Evaluation{
		Coupon:                *coupon,
		DiscountCents:         discount,
		EligibleSubtotalCents: eligible,
	}, nil
}

func lineEligible(coupon models.Coupon, line CartLine) bool {
	if !coupon.IsScoped() {
		return true
	}
	for _, id := range coupon.ApplicableProducts {
		if id == line.ProductID.String() {
			return true
		}
	}
	for _, id := range coupon.ApplicableCategories {
		if id == line.CategoryID.String() {
			return true
		}
	}
	return false
}

func computeDiscount(coupon models.Coupon, baseCents, shippingCents int64) int64 {
	switch coupon.Type {
	case enums.CouponTypePercentage:
		return decimal.NewFromInt(baseCents).
			Mul(decimal.NewFromInt(coupon.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case enums.CouponTypeFixedAmount:
		return coupon.Value
	case enums.CouponTypeFreeShipping:
		return shippingCents
	default:
		return 0
	}
}
