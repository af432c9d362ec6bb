package returns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/internal/coupons"
	"github.com/auracommerce/aura-backend/internal/inventory"
	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	"github.com/auracommerce/aura-backend/internal/settings"
	"github.com/auracommerce/aura-backend/pkg/db"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

type stubRefunder struct {
	calls []string
}

func (s *stubRefunder) Refund(ctx context.Context, intentID string) error {
	s.calls = append(s.calls, intentID)
	return nil
}

type stubNotifier struct {
	events []string
}

func (s *stubNotifier) ReturnUpdated(ctx context.Context, order models.Order, request models.ReturnRequest, event string) {
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

	dsn := "file:returns_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.ReturnRequest{},
		&models.ReturnItem{},
		&models.Product{},
		&models.ProductVariant{},
		&models.Coupon{},
		&models.CouponUsage{},
		&models.Shop{},
		&models.StoreSettings{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	orderRepo := orders.NewRepository(conn)
	reads, err := orders.NewService(orderRepo)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	refunder := &stubRefunder{}
	recon, err := reconciliation.NewService(
		orderRepo,
		reads,
		db.FromGorm(conn),
		inventory.NewService(),
		coupons.NewRepository(conn),
		refunder,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("reconciliation service: %v", err)
	}
	settingsSvc, err := settings.NewService(settings.NewRepository(conn), time.Minute)
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}

	notifier := &stubNotifier{}
	svc, err := NewService(
		NewRepository(conn),
		orderRepo,
		settingsSvc,
		recon,
		db.FromGorm(conn),
		notifier,
	)
	if err != nil {
		t.Fatalf("returns service: %v", err)
	}
	return &fixture{db: conn, svc: svc, refunder: refunder, notifier: notifier}
}

type orderOpts struct {
	orderStatus   enums.OrderStatus
	paymentStatus enums.PaymentStatus
	method        enums.PaymentMethod
	deliveredAt   *time.Time
	intentID      *string
	productStock  int
	qty           int
}

func (f *fixture) seedOrder(t *testing.T, opts orderOpts) models.Order {
	t.Helper()

	if opts.method == "" {
		opts.method = enums.PaymentMethodCard
	}
	if opts.qty == 0 {
		opts.qty = 2
	}

	product := models.Product{
		ID:             uuid.New(),
		ShopID:         uuid.New(),
		CategoryID:     uuid.New(),
		Name:           "Aura Kettle",
		SKU:            "KET-1",
		Status:         enums.ProductStatusPublished,
		BasePriceCents: 4000,
		Stock:          opts.productStock,
		SoldCount:      opts.qty,
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	order := models.Order{
		ID:            uuid.New(),
		OrderNumber:   "AURA-" + uuid.NewString()[:8],
		UserID:        uuid.New(),
		ShopID:        product.ShopID,
		AddressID:     uuid.New(),
		OrderStatus:   opts.orderStatus,
		PaymentStatus: opts.paymentStatus,
		PaymentMethod: opts.method,
		SubtotalCents: 8000,
		TotalCents:    8000,
		DeliveredAt:   opts.deliveredAt,
		StripePaymentID: opts.intentID,
		Items: []models.OrderItem{{
			ID:          uuid.New(),
			ProductID:   product.ID,
			ProductName: product.Name,
			SKU:         product.SKU,
			PriceCents:  4000,
			Quantity:    opts.qty,
			TotalCents:  4000 * int64(opts.qty),
		}},
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func deliveredOrder(f *fixture, t *testing.T) models.Order {
	return f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPaid,
		deliveredAt:   timePtr(time.Now().Add(-48 * time.Hour)),
		intentID:      strPtr("pi_ret_1"),
		productStock:  3,
	})
}

func TestCreateFullOrderReturn(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{
		OrderID: order.ID,
		Reason:  "damaged in transit",
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if request.Status != enums.ReturnStatusRequested {
		t.Fatalf("expected REQUESTED, got %s", request.Status)
	}
	if len(request.Items) != 1 || request.Items[0].Quantity != 2 {
		t.Fatalf("expected full-order items, got %+v", request.Items)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != "return.requested" {
		t.Fatalf("expected return.requested notification, got %v", f.notifier.events)
	}
}

func TestCreateRejectsUndeliveredOrder(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusShipped,
		paymentStatus: enums.PaymentStatusPaid,
		productStock:  3,
	})

	_, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "changed my mind"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateRejectsExpiredWindow(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPaid,
		deliveredAt:   timePtr(time.Now().Add(-30 * 24 * time.Hour)),
		productStock:  3,
	})

	_, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "too late"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateRejectsSecondOpenReturn(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)

	if _, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"}); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "again"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateRejectsPartialQuantities(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)

	var item models.OrderItem
	if err := f.db.First(&item, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order item: %v", err)
	}

	_, err := f.svc.Create(context.Background(), order.UserID, CreateInput{
		OrderID: order.ID,
		Reason:  "just one",
		Items:   []ItemInput{{OrderItemID: item.ID, Quantity: 1}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateHidesForeignOrder(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)

	_, err := f.svc.Create(context.Background(), uuid.New(), CreateInput{OrderID: order.ID, Reason: "not mine"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusStampsTimeline(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)
	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	approved, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovedAt == nil {
		t.Fatal("expected approved_at stamp")
	}

	received, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusReceived)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.ReceivedAt == nil {
		t.Fatal("expected received_at stamp")
	}
}

func TestRefundPaidCardReturn(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)
	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	refunded, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusRefunded)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.RefundedAt == nil {
		t.Fatal("expected refunded_at stamp")
	}

	if len(f.refunder.calls) != 1 || f.refunder.calls[0] != "pi_ret_1" {
		t.Fatalf("expected gateway refund of pi_ret_1, got %v", f.refunder.calls)
	}

	var storedOrder models.Order
	if err := f.db.First(&storedOrder, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if storedOrder.OrderStatus != enums.OrderStatusRefunded || storedOrder.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED/REFUNDED, got %s/%s", storedOrder.OrderStatus, storedOrder.PaymentStatus)
	}

	var product models.Product
	if err := f.db.First(&product).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Stock != 5 || product.SoldCount != 0 {
		t.Fatalf("expected stock restored to 5/0, got %d/%d", product.Stock, product.SoldCount)
	}

	// only the return-level notification goes out
	last := f.notifier.events[len(f.notifier.events)-1]
	if last != "return.REFUNDED" {
		t.Fatalf("expected return.REFUNDED event, got %q", last)
	}
}

func TestRefundCODReturnSkipsGateway(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, orderOpts{
		orderStatus:   enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPending,
		method:        enums.PaymentMethodCOD,
		deliveredAt:   timePtr(time.Now().Add(-24 * time.Hour)),
		productStock:  3,
	})
	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusRefunded); err != nil {
		t.Fatalf("refund: %v", err)
	}

	if len(f.refunder.calls) != 0 {
		t.Fatalf("expected no gateway refund for COD, got %v", f.refunder.calls)
	}

	var product models.Product
	if err := f.db.First(&product).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.Stock)
	}
}

func TestUpdateStatusClosedReturn(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)
	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// a rejected return is not closed; refunding it afterwards is allowed
	if _, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusRefunded); err != nil {
		t.Fatalf("refund after reject: %v", err)
	}
	_, err = f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusApproved)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected closed return, got %v", err)
	}
}

func TestCancelRequestedReturn(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	cancelled, err := f.svc.Cancel(context.Background(), order.UserID, request.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.ReturnStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected CANCELLED with stamp, got %s", cancelled.Status)
	}

	// a cancelled return no longer blocks a new request
	if _, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"}); err != nil {
		t.Fatalf("second return after cancel: %v", err)
	}
}

func TestCancelApprovedReturnRejected(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)
	admin := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	request, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), admin, request.ID, enums.ReturnStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = f.svc.Cancel(context.Background(), order.UserID, request.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListScopesReturns(t *testing.T) {
	f := newFixture(t)
	order := deliveredOrder(f, t)
	other := deliveredOrder(f, t)

	if _, err := f.svc.Create(context.Background(), order.UserID, CreateInput{OrderID: order.ID, Reason: "damaged"}); err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), other.UserID, CreateInput{OrderID: other.ID, Reason: "damaged"}); err != nil {
		t.Fatalf("second return: %v", err)
	}

	mine, _, err := f.svc.List(context.Background(), orders.Actor{UserID: order.UserID, Role: enums.UserRoleUser}, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 own return, got %d", len(mine))
	}

	all, meta, err := f.svc.List(context.Background(), orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, pagination.Params{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 || meta.Total != 2 {
		t.Fatalf("expected 2 returns, got %d", len(all))
	}
}
