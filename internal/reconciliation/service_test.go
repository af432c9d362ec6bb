package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/inventory"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/pkg/db"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

type stubRefunder struct {
	calls []string
	err   error
}

func (s *stubRefunder) Refund(ctx context.Context, intentID string) error {
	s.calls = append(s.calls, intentID)
	return s.err
}

type stubNotifier struct {
	events []string
}

func (s *stubNotifier) OrderUpdated(ctx context.Context, order models.Order, event string) {
	s.events = append(s.events, event)
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	refunder *stubRefunder
	notifier *stubNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:reconciliation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.Product{},
		&models.ProductVariant{},
		&models.Coupon{},
		&models.CouponUsage{},
		&models.Shop{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := orders.NewRepository(conn)
	reads, err := orders.NewService(repo)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}

	refunder := &stubRefunder{}
	notifier := &stubNotifier{}
	svc, err := NewService(
		repo,
		reads,
		db.FromGorm(conn),
		inventory.NewService(),
		coupons.NewRepository(conn),
		refunder,
		notifier,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{db: conn, svc: svc, refunder: refunder, notifier: notifier}
}

type orderOpts struct {
	orderStatus   enums.OrderStatus
	paymentStatus enums.PaymentStatus
	method        enums.PaymentMethod
	intentID      *string
	couponID      *uuid.UUID
	productStock  int
	soldCount     int
	qty           int
}

func (f *fixture) seedOrder(t *testing.T, opts orderOpts) (models.Order, models.Product) {
	t.Helper()

	if opts.qty == 0 {
		opts.qty = 2
	}
	product := models.Product{
		ID:             uuid.New(),
		ShopID:         uuid.New(),
		CategoryID:     uuid.New(),
		Name:           "Linen Throw",
		SKU:            "SKU-THROW",
		Status:         enums.ProductStatusPublished,
		BasePriceCents: 4500,
		Stock:          opts.productStock,
		SoldCount:      opts.soldCount,
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	method := opts.method
	if method == "" {
		method = enums.PaymentMethodCard
	}
	order := models.Order{
		ID:              uuid.New(),
		OrderNumber:     "AURA-00000001-1234",
		UserID:          uuid.New(),
		ShopID:          product.ShopID,
		AddressID:       uuid.New(),
		OrderStatus:     opts.orderStatus,
		PaymentStatus:   opts.paymentStatus,
		PaymentMethod:   method,
		SubtotalCents:   9000,
		TotalCents:      9000,
		StripePaymentID: opts.intentID,
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	item := models.OrderItem{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
		Quantity:    opts.qty,
		PriceCents:  4500,
		TotalCents:  9000,
	}
	if err := f.db.Create(&item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}

	if opts.couponID != nil {
		usage := models.CouponUsage{
			ID:            uuid.New(),
			CouponID:      *opts.couponID,
			UserID:        order.UserID,
			OrderID:       order.ID,
			DiscountCents: 500,
		}
		if err := f.db.Create(&usage).Error; err != nil {
			t.Fatalf("seed coupon usage: %v", err)
		}
	}
	return order, product
}

func TestHandleEventPaymentSucceeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_success_1"
	order, _ := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
	})

	outcome, err := f.svc.HandleEvent(ctx, PaymentEvent{
		Type:          EventPaymentSucceeded,
		IntentID:      intent,
		TransactionID: "ch_123",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	var got models.Order
	if err := f.db.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusConfirmed || got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("unexpected state %s/%s", got.OrderStatus, got.PaymentStatus)
	}
	if got.PaidAt == nil {
		t.Fatalf("expected paid_at stamp")
	}
	if got.TransactionID == nil || *got.TransactionID != "ch_123" {
		t.Fatalf("expected transaction id, got %v", got.TransactionID)
	}
	if len(f.notifier.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.events))
	}
}

func TestHandleEventDuplicateSuccessIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_dup_1"
	order, _ := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
	})

	event := PaymentEvent{Type: EventPaymentSucceeded, IntentID: intent, TransactionID: "ch_1"}
	if _, err := f.svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	var first models.Order
	if err := f.db.First(&first, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	firstPaidAt := *first.PaidAt

	// redelivery must not change anything
	event.TransactionID = "ch_2"
	outcome, err := f.svc.HandleEvent(ctx, event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}

	var second models.Order
	if err := f.db.First(&second, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !second.PaidAt.Equal(firstPaidAt) {
		t.Fatalf("paid_at changed on duplicate delivery")
	}
	if *second.TransactionID != "ch_1" {
		t.Fatalf("transaction id overwritten on duplicate delivery")
	}
}

func TestHandleEventPaymentFailedCompensates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_fail_1"
	couponID := uuid.New()
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
		couponID:      &couponID,
		productStock:  3,
		soldCount:     2,
	})
	code := "SAVE5"
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("coupon_code", code).Error; err != nil {
		t.Fatalf("set coupon code: %v", err)
	}

	outcome, err := f.svc.HandleEvent(ctx, PaymentEvent{Type: EventPaymentFailed, IntentID: intent})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}

	var got models.Order
	if err := f.db.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusCancelled || got.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("unexpected state %s/%s", got.OrderStatus, got.PaymentStatus)
	}
	if got.CancelledAt == nil {
		t.Fatalf("expected cancelled_at stamp")
	}

	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 5 || gotProduct.SoldCount != 0 {
		t.Fatalf("inventory not restored: stock=%d sold=%d", gotProduct.Stock, gotProduct.SoldCount)
	}

	var usageCount int64
	if err := f.db.Model(&models.CouponUsage{}).Where("order_id = ?", order.ID).Count(&usageCount).Error; err != nil {
		t.Fatalf("count usage: %v", err)
	}
	if usageCount != 0 {
		t.Fatalf("coupon usage not released")
	}

	// redelivery: payment status is FAILED now, so nothing happens again
	outcome, err = f.svc.HandleEvent(ctx, PaymentEvent{Type: EventPaymentFailed, IntentID: intent})
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped on redelivery, got %s", outcome)
	}
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 5 {
		t.Fatalf("stock restored twice")
	}
}

func TestHandleEventUnknownTypeIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	outcome, err := f.svc.HandleEvent(context.Background(), PaymentEvent{
		Type:     "customer.subscription.updated",
		IntentID: "pi_whatever",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}
}

func TestHandleEventUnknownIntentAcked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	outcome, err := f.svc.HandleEvent(context.Background(), PaymentEvent{
		Type:     EventPaymentSucceeded,
		IntentID: "pi_missing",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
}

func TestRefundOrderPaidCardRestoresOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_refund_1"
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intent,
		productStock:  1,
		soldCount:     2,
	})

	updated, err := f.svc.RefundOrder(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if updated.OrderStatus != enums.OrderStatusRefunded || updated.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("unexpected state %s/%s", updated.OrderStatus, updated.PaymentStatus)
	}
	if len(f.refunder.calls) != 1 || f.refunder.calls[0] != intent {
		t.Fatalf("expected one gateway refund, got %v", f.refunder.calls)
	}

	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 3 || gotProduct.SoldCount != 0 {
		t.Fatalf("inventory not restored: %+v", gotProduct)
	}

	// the gateway will redeliver charge.refunded; it must not restore again
	outcome, err := f.svc.HandleEvent(ctx, PaymentEvent{Type: EventChargeRefunded, IntentID: intent})
	if err != nil {
		t.Fatalf("webhook after refund: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 3 {
		t.Fatalf("stock restored twice after webhook")
	}
}

func TestRefundOrderGatewayFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.refunder.err = errors.New("gateway down")
	ctx := context.Background()
	intent := "pi_refund_err"
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intent,
		productStock:  1,
		soldCount:     2,
	})

	if _, err := f.svc.RefundOrder(ctx, order.ID, true); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	var got models.Order
	if err := f.db.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("state mutated despite gateway failure")
	}
	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 1 {
		t.Fatalf("stock mutated despite gateway failure")
	}
}

func TestUpdateStatusManualCancelPendingOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	couponID := uuid.New()
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		method:        enums.PaymentMethodCOD,
		couponID:      &couponID,
		productStock:  0,
		soldCount:     2,
	})
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("coupon_code", "SAVE5").Error; err != nil {
		t.Fatalf("set coupon code: %v", err)
	}

	actor := orders.Actor{UserID: order.UserID, Role: enums.UserRoleUser}
	updated, err := f.svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.OrderStatus != enums.OrderStatusCancelled || updated.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("unexpected state %s/%s", updated.OrderStatus, updated.PaymentStatus)
	}

	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 2 || gotProduct.SoldCount != 0 {
		t.Fatalf("inventory not restored: %+v", gotProduct)
	}

	// cancelling again is a conflict
	if _, err := f.svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusCancelled); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestUpdateStatusForwardOnlyStamps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusConfirmed,
		paymentStatus: enums.PaymentStatusPaid,
	})
	actor := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	updated, err := f.svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusShipped)
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if updated.ShippedAt == nil {
		t.Fatalf("expected shipped_at stamp")
	}

	updated, err = f.svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusDelivered)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if updated.DeliveredAt == nil {
		t.Fatalf("expected delivered_at stamp")
	}

	// moving backwards is rejected
	if _, err := f.svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusProcessing); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestUpdateStatusScopesVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		method:        enums.PaymentMethodCOD,
	})

	stranger := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleUser}
	if _, err := f.svc.UpdateOrderStatus(ctx, stranger, order.ID, enums.OrderStatusCancelled); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
}

type hookedTxRunner struct {
	inner  txRunner
	before func()
	fail   bool
}

func (r *hookedTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.before != nil {
		hook := r.before
		r.before = nil
		hook()
	}
	return r.inner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if r.fail {
			return errors.New("transaction aborted")
		}
		return nil
	})
}

func (f *fixture) serviceWithRunner(t *testing.T, runner txRunner) Service {
	t.Helper()
	repo := orders.NewRepository(f.db)
	reads, err := orders.NewService(repo)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	svc, err := NewService(
		repo,
		reads,
		runner,
		inventory.NewService(),
		coupons.NewRepository(f.db),
		f.refunder,
		f.notifier,
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestHandleEventRollbackKeepsCouponUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_rollback_1"
	couponID := uuid.New()
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
		couponID:      &couponID,
		productStock:  3,
		soldCount:     2,
	})
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("coupon_code", "SAVE5").Error; err != nil {
		t.Fatalf("set coupon code: %v", err)
	}

	svc := f.serviceWithRunner(t, &hookedTxRunner{inner: db.FromGorm(f.db), fail: true})
	if _, err := svc.HandleEvent(ctx, PaymentEvent{Type: EventPaymentFailed, IntentID: intent}); err == nil {
		t.Fatalf("expected transaction failure")
	}

	// everything the compensation touched must have rolled back together
	var got models.Order
	if err := f.db.First(&got, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusPending || got.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("order mutated despite rollback: %s/%s", got.OrderStatus, got.PaymentStatus)
	}
	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 3 || gotProduct.SoldCount != 2 {
		t.Fatalf("inventory mutated despite rollback: %+v", gotProduct)
	}
	var usageCount int64
	if err := f.db.Model(&models.CouponUsage{}).Where("order_id = ?", order.ID).Count(&usageCount).Error; err != nil {
		t.Fatalf("count usage: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("coupon usage released outside the transaction")
	}
}

func TestUpdateStatusCancelSeesPaymentLanded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_landed_1"
	couponID := uuid.New()
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
		couponID:      &couponID,
		productStock:  3,
		soldCount:     2,
	})
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("coupon_code", "SAVE5").Error; err != nil {
		t.Fatalf("set coupon code: %v", err)
	}

	// the payment succeeds after the caller's read but before the transaction
	svc := f.serviceWithRunner(t, &hookedTxRunner{
		inner: db.FromGorm(f.db),
		before: func() {
			if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
				"order_status":   enums.OrderStatusConfirmed,
				"payment_status": enums.PaymentStatusPaid,
			}).Error; err != nil {
				t.Fatalf("land payment: %v", err)
			}
		},
	})

	actor := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	updated, err := svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.OrderStatus != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.OrderStatus)
	}
	if updated.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("captured payment overwritten: %s", updated.PaymentStatus)
	}

	// a paid order keeps its stock and coupon usage until a refund runs
	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 3 || gotProduct.SoldCount != 2 {
		t.Fatalf("inventory restored for a paid order: %+v", gotProduct)
	}
	var usageCount int64
	if err := f.db.Model(&models.CouponUsage{}).Where("order_id = ?", order.ID).Count(&usageCount).Error; err != nil {
		t.Fatalf("count usage: %v", err)
	}
	if usageCount != 1 {
		t.Fatalf("coupon usage released for a paid order")
	}
	if len(f.refunder.calls) != 0 {
		t.Fatalf("unexpected gateway refund: %v", f.refunder.calls)
	}
}

func TestUpdateStatusRefundRoutesAfterPaymentLands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	intent := "pi_landed_2"
	order, product := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusPending,
		intentID:      &intent,
		productStock:  3,
		soldCount:     2,
	})

	svc := f.serviceWithRunner(t, &hookedTxRunner{
		inner: db.FromGorm(f.db),
		before: func() {
			if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
				"order_status":   enums.OrderStatusConfirmed,
				"payment_status": enums.PaymentStatusPaid,
			}).Error; err != nil {
				t.Fatalf("land payment: %v", err)
			}
		},
	})

	actor := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	updated, err := svc.UpdateOrderStatus(ctx, actor, order.ID, enums.OrderStatusRefunded)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if updated.OrderStatus != enums.OrderStatusRefunded || updated.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("unexpected state %s/%s", updated.OrderStatus, updated.PaymentStatus)
	}
	if len(f.refunder.calls) != 1 || f.refunder.calls[0] != intent {
		t.Fatalf("expected gateway refund of %s, got %v", intent, f.refunder.calls)
	}

	var gotProduct models.Product
	if err := f.db.First(&gotProduct, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.Stock != 5 || gotProduct.SoldCount != 0 {
		t.Fatalf("inventory not restored: %+v", gotProduct)
	}
}

func TestTransitionStampsAreUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*60*60)
	stamp := time.Date(2026, 3, 1, 10, 30, 0, 0, loc)
	s := &service{now: func() time.Time { return stamp }}

	fields := s.fieldsFor(Transition{
		OrderStatus:      enums.OrderStatusCancelled,
		StampCancelledAt: true,
	})
	got, ok := fields["cancelled_at"].(time.Time)
	if !ok {
		t.Fatalf("expected cancelled_at stamp, got %v", fields)
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC stamp, got %v", got.Location())
	}
	if !got.Equal(stamp) {
		t.Fatalf("stamp shifted: %v vs %v", got, stamp)
	}
}
