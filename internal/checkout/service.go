package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/internal/cart"
	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/inventory"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/internal/settings"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
	"github.com/auracommerce/aura-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type intentCreator interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
}

type couponReleaser interface {
	WithTx(tx *gorm.DB) coupons.Repository
}

// Notifier receives the order-placed event. Implementations must not fail
// the checkout.
type Notifier interface {
	OrderUpdated(ctx context.Context, order models.Order, event string)
}

// CreateOrderInput carries the checkout request.
type CreateOrderInput struct {
	AddressID     uuid.UUID
	PaymentMethod enums.PaymentMethod
	CouponCode    string
	CustomerNote  *string
}

// Result is the checkout outcome. ClientSecret is set for card orders only.
type Result struct {
	Order        models.Order `json:"order"`
	ClientSecret string       `json:"clientSecret,omitempty"`
}

// Service turns a cart into an order.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*Result, error)
}

type service struct {
	repo       Repository
	cartRepo   cart.Repository
	orderRepo  orders.Repository
	couponRepo couponReleaser
	evaluator  coupons.Evaluator
	inventory  inventory.Service
	settings   settings.Service
	tx         txRunner
	gateway    intentCreator
	notifier   Notifier
	metrics    *metrics.CheckoutMetrics
	currency   string
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the checkout orchestrator. Gateway, notifier, metrics,
// and logger are optional; a nil gateway restricts checkout to COD.
func NewService(
	repo Repository,
	cartRepo cart.Repository,
	orderRepo orders.Repository,
	couponRepo couponReleaser,
	evaluator coupons.Evaluator,
	inv inventory.Service,
	settingsSvc settings.Service,
	tx txRunner,
	gateway intentCreator,
	notifier Notifier,
	checkoutMetrics *metrics.CheckoutMetrics,
	currency string,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout repository required")
	}
	if cartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if orderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if couponRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	if evaluator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon evaluator required")
	}
	if inv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if settingsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:       repo,
		cartRepo:   cartRepo,
		orderRepo:  orderRepo,
		couponRepo: couponRepo,
		evaluator:  evaluator,
		inventory:  inv,
		settings:   settingsSvc,
		tx:         tx,
		gateway:    gateway,
		notifier:   notifier,
		metrics:    checkoutMetrics,
		currency:   currency,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// CreateOrder validates the cart, prices it, reserves stock, and writes the
// order atomically. Card orders get a payment intent after commit; if the
// gateway rejects the intent the order is cancelled and the reservation
// rolled back.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*Result, error) {
	started := s.now()

	result, err := s.createOrder(ctx, userID, input)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			if pkgerrors.IsCode(err, pkgerrors.CodeStock) {
				outcome = "insufficient_stock"
			} else if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				outcome = "gateway_error"
			}
		}
		s.metrics.ObserveCheckout(outcome, s.now().Sub(started))
	}
	return result, err
}

func (s *service) createOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*Result, error) {
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}

	userCart, err := s.cartRepo.GetWithItems(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if userCart == nil || len(userCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	address, err := s.repo.GetAddress(ctx, userID, input.AddressID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	if address == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address not found")
	}

	shopID, err := singleShop(userCart.Items)
	if err != nil {
		return nil, err
	}

	storeSettings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		ID:            uuid.New(),
		OrderNumber:   generateOrderNumber(s.now()),
		UserID:        userID,
		ShopID:        shopID,
		AddressID:     address.ID,
		PaymentMethod: input.PaymentMethod,
		OrderStatus:   enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		CustomerNote:  input.CustomerNote,
	}

	var reserved []inventory.Line
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var subtotal int64
		items := make([]models.OrderItem, 0, len(userCart.Items))
		lines := make([]coupons.CartLine, 0, len(userCart.Items))

		for _, cartItem := range userCart.Items {
			if cartItem.Product == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart item references a missing product")
			}
			product := *cartItem.Product

			snapshot, line, err := s.buildLine(ctx, repo, product, cartItem)
			if err != nil {
				return err
			}

			if err := s.inventory.Reserve(ctx, tx, line); err != nil {
				return err
			}
			reserved = append(reserved, line)

			subtotal += snapshot.TotalCents
			snapshot.OrderID = order.ID
			items = append(items, snapshot)
			lines = append(lines, coupons.CartLine{
				ProductID:      product.ID,
				CategoryID:     product.CategoryID,
				LineTotalCents: snapshot.TotalCents,
			})
		}

		shipping := int64(0)
		if subtotal < storeSettings.ShippingThresholdCents {
			shipping = storeSettings.BaseShippingCostCents
		}

		var evaluation *coupons.Evaluation
		if input.CouponCode != "" {
			evaluation, err = s.evaluator.Evaluate(ctx, tx, input.CouponCode, userID, lines, shipping)
			if err != nil {
				return err
			}
		}

		var discount int64
		if evaluation != nil {
			discount = evaluation.DiscountCents
		}

		tax := taxCents(subtotal, discount, evaluation, storeSettings.TaxRate)

		order.SubtotalCents = subtotal
		order.DiscountCents = discount
		order.ShippingCostCents = shipping
		order.TaxCents = tax
		order.TotalCents = subtotal - discount + shipping + tax
		order.Items = items
		if evaluation != nil {
			code := evaluation.Coupon.Code
			order.CouponCode = &code
			order.CouponDiscountCents = &discount
		}

		if err := s.orderRepo.WithTx(tx).Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if evaluation != nil {
			usage := models.CouponUsage{
				ID:            uuid.New(),
				CouponID:      evaluation.Coupon.ID,
				UserID:        userID,
				OrderID:       order.ID,
				DiscountCents: discount,
			}
			if err := repo.CreateCouponUsage(ctx, &usage); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
			}
		}

		if err := s.cartRepo.WithTx(tx).DeleteItems(ctx, userCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	clientSecret := ""
	if input.PaymentMethod == enums.PaymentMethodCard {
		clientSecret, err = s.createIntent(ctx, &order, reserved)
		if err != nil {
			return nil, err
		}
	}

	if s.notifier != nil {
		s.notifier.OrderUpdated(ctx, order, "order.created")
	}

	stored, err := s.orderRepo.GetByID(ctx, order.ID)
	if err != nil || stored == nil {
		return &Result{Order: order, ClientSecret: clientSecret}, nil
	}
	return &Result{Order: *stored, ClientSecret: clientSecret}, nil
}

// createIntent runs after commit. A gateway failure triggers the full
// compensation path: cancel the order, restore stock, release the coupon.
func (s *service) createIntent(ctx context.Context, order *models.Order, reserved []inventory.Line) (string, error) {
	if s.gateway == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "card payments are not configured")
	}

	intent, err := s.gateway.CreateIntent(ctx, order.TotalCents, s.currency, map[string]string{
		"orderId": order.ID.String(),
		"userId":  order.UserID.String(),
	})
	if err == nil {
		if updateErr := s.orderRepo.UpdateFields(ctx, order.ID, map[string]any{"stripe_payment_id": intent.ID}); updateErr != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "store payment intent id")
		}
		stripeID := intent.ID
		order.StripePaymentID = &stripeID
		return intent.ClientSecret, nil
	}

	compErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.inventory.Restore(ctx, tx, reserved); err != nil {
			return err
		}
		if order.CouponCode != nil {
			if err := s.couponRepo.WithTx(tx).DeleteUsageByOrderID(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon usage")
			}
		}
		return s.orderRepo.WithTx(tx).UpdateFields(ctx, order.ID, map[string]any{
			"order_status":   enums.OrderStatusCancelled,
			"payment_status": enums.PaymentStatusFailed,
			"cancelled_at":   s.now().UTC(),
		})
	})
	if compErr != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "checkout compensation failed", compErr)
		}
	} else if s.metrics != nil {
		s.metrics.IncCompensation()
	}

	return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
}

// buildLine snapshots one cart item into an order item and the stock
// reservation it needs. Variant price overrides sale price overrides base.
func (s *service) buildLine(ctx context.Context, repo Repository, product models.Product, cartItem models.CartItem) (models.OrderItem, inventory.Line, error) {
	unitPrice := product.EffectivePriceCents()
	sku := product.SKU
	var variantInfo json.RawMessage

	if cartItem.VariantID != nil {
		variant, err := repo.GetVariant(ctx, *cartItem.VariantID)
		if err != nil {
			return models.OrderItem{}, inventory.Line{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant == nil || variant.ProductID != product.ID {
			return models.OrderItem{}, inventory.Line{}, pkgerrors.New(pkgerrors.CodeValidation, "variant not found")
		}
		sku = variant.SKU
		if variant.PriceCents != nil {
			unitPrice = *variant.PriceCents
		}
		info, err := json.Marshal(variantSnapshot{Name: variant.Name, Attributes: variant.Attributes})
		if err != nil {
			return models.OrderItem{}, inventory.Line{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode variant info")
		}
		variantInfo = info
	}

	snapshot := models.OrderItem{
		ID:          uuid.New(),
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         sku,
		Image:       product.Image,
		Quantity:    cartItem.Quantity,
		PriceCents:  unitPrice,
		TotalCents:  unitPrice * int64(cartItem.Quantity),
		VariantInfo: variantInfo,
	}
	line := inventory.Line{
		ProductID:   product.ID,
		VariantID:   cartItem.VariantID,
		SKU:         sku,
		ProductName: product.Name,
		Quantity:    cartItem.Quantity,
	}
	return snapshot, line, nil
}

type variantSnapshot struct {
	Name       string          `json:"name"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// singleShop ensures every cart line is published and sold by one shop.
func singleShop(items []models.CartItem) (uuid.UUID, error) {
	var shopID uuid.UUID
	for _, item := range items {
		if item.Product == nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item references a missing product")
		}
		if item.Product.Status != enums.ProductStatusPublished {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("product %s is unavailable", item.Product.Name))
		}
		if shopID == uuid.Nil {
			shopID = item.Product.ShopID
			continue
		}
		if item.Product.ShopID != shopID {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains items from multiple shops")
		}
	}
	return shopID, nil
}

// taxCents applies the configured rate to the subtotal net of item-level
// discounts. Free-shipping discounts do not reduce the taxable base.
func taxCents(subtotal, discount int64, evaluation *coupons.Evaluation, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	taxable := subtotal
	if evaluation != nil && evaluation.Coupon.Type != enums.CouponTypeFreeShipping {
		taxable -= discount
	}
	if taxable <= 0 {
		return 0
	}
	return decimal.NewFromInt(taxable).
		Mul(decimal.NewFromFloat(rate)).
		Round(0).
		IntPart()
}

func generateOrderNumber(now time.Time) string {
	timestamp := fmt.Sprintf("%d", now.UnixMilli())
	if len(timestamp) > 8 {
		timestamp = timestamp[len(timestamp)-8:]
	}
	return fmt.Sprintf("AURA-%s-%04d", timestamp, 1000+rand.Intn(9000))
}
