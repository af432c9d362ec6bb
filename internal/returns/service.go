package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsReader interface {
	Get(ctx context.Context) (models.StoreSettings, error)
}

type orderRefunder interface {
	RefundOrder(ctx context.Context, orderID uuid.UUID, notify bool) (*models.Order, error)
}

// Notifier delivers return updates to the customer; failures never
// propagate.
type Notifier interface {
	ReturnUpdated(ctx context.Context, order models.Order, request models.ReturnRequest, event string)
}

// ItemInput selects how much of one order line to return.
type ItemInput struct {
	OrderItemID uuid.UUID
	Quantity    int
}

// CreateInput carries a return request. An empty Items slice means the full
// order.
type CreateInput struct {
	OrderID uuid.UUID
	Reason  string
	Note    *string
	Items   []ItemInput
}

// Service runs the return workflow.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.ReturnRequest, error)
	List(ctx context.Context, actor orders.Actor, params pagination.Params) ([]models.ReturnRequest, pagination.Meta, error)
	Get(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	UpdateStatus(ctx context.Context, actor orders.Actor, returnID uuid.UUID, status enums.ReturnStatus) (*models.ReturnRequest, error)
	Cancel(ctx context.Context, userID, returnID uuid.UUID) (*models.ReturnRequest, error)
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	settings  settingsReader
	refunder  orderRefunder
	tx        txRunner
	notifier  Notifier
	now       func() time.Time
}

// NewService wires the return workflow. The notifier is optional.
func NewService(
	repo Repository,
	orderRepo orders.Repository,
	settings settingsReader,
	refunder orderRefunder,
	tx txRunner,
	notifier Notifier,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "returns repository required")
	}
	if orderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings service required")
	}
	if refunder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{
		repo:      repo,
		orderRepo: orderRepo,
		settings:  settings,
		refunder:  refunder,
		tx:        tx,
		notifier:  notifier,
		now:       time.Now,
	}, nil
}

// Create opens a return for a delivered order inside the return window. The
// current policy accepts only full-order returns; omitted items default to
// every line at full quantity.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.ReturnRequest, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason required")
	}

	order, err := s.orderRepo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil || order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.OrderStatus != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "returns are available only after delivery")
	}
	if order.DeliveredAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order delivery date is missing")
	}

	storeSettings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	deadline := order.DeliveredAt.AddDate(0, 0, storeSettings.ReturnWindowDays)
	if s.now().After(deadline) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return window has expired")
	}

	open, err := s.repo.FindOpenByOrderID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing returns")
	}
	if open != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a return is already in progress for this order")
	}

	items, err := resolveItems(*order, input.Items)
	if err != nil {
		return nil, err
	}

	request := models.ReturnRequest{
		ID:      uuid.New(),
		OrderID: order.ID,
		UserID:  userID,
		Reason:  input.Reason,
		Note:    input.Note,
		Status:  enums.ReturnStatusRequested,
		Items:   items,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, &request)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
	}

	stored, err := s.repo.GetByID(ctx, request.ID)
	if err != nil || stored == nil {
		stored = &request
	}
	if s.notifier != nil {
		s.notifier.ReturnUpdated(ctx, *order, *stored, "return.requested")
	}
	return stored, nil
}

// List returns the actor's return requests: their own for users, their
// shop's for vendors, everything for admins.
func (s *service) List(ctx context.Context, actor orders.Actor, params pagination.Params) ([]models.ReturnRequest, pagination.Meta, error) {
	var filter Filter
	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleVendor:
		shop, err := s.orderRepo.ShopByVendor(ctx, actor.UserID)
		if err != nil {
			return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor shop")
		}
		if shop == nil {
			return []models.ReturnRequest{}, pagination.NewMeta(params, 0), nil
		}
		filter.ShopID = &shop.ID
	default:
		filter.UserID = &actor.UserID
	}

	requests, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pagination.Meta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	return requests, pagination.NewMeta(params, total), nil
}

// Get returns one request if the actor may see it.
func (s *service) Get(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.repo.GetByID(ctx, returnID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}

	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleVendor:
		shop, err := s.orderRepo.ShopByVendor(ctx, actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor shop")
		}
		if shop == nil || request.Order == nil || request.Order.ShopID != shop.ID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
	default:
		if request.UserID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
	}
	return request, nil
}

// UpdateStatus moves the request forward. REFUNDED triggers the order
// refund path; the order-level notification is suppressed there because a
// return-level one is sent here.
func (s *service) UpdateStatus(ctx context.Context, actor orders.Actor, returnID uuid.UUID, status enums.ReturnStatus) (*models.ReturnRequest, error) {
	if !status.IsValid() || status == enums.ReturnStatusRequested {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}

	request, err := s.Get(ctx, actor, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status == enums.ReturnStatusCancelled || request.Status == enums.ReturnStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return request is closed")
	}

	now := s.now().UTC()
	fields := map[string]any{"status": status}
	switch status {
	case enums.ReturnStatusApproved:
		fields["approved_at"] = now
	case enums.ReturnStatusRejected:
		fields["rejected_at"] = now
	case enums.ReturnStatusReceived:
		fields["received_at"] = now
	case enums.ReturnStatusCancelled:
		fields["cancelled_at"] = now
	case enums.ReturnStatusRefunded:
		if _, err := s.refunder.RefundOrder(ctx, request.OrderID, false); err != nil {
			return nil, err
		}
		fields["refunded_at"] = now
	}

	if err := s.repo.UpdateFields(ctx, request.ID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return request")
	}

	updated, err := s.repo.GetByID(ctx, request.ID)
	if err != nil || updated == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return request")
	}
	if s.notifier != nil && updated.Order != nil {
		s.notifier.ReturnUpdated(ctx, *updated.Order, *updated, fmt.Sprintf("return.%s", status))
	}
	return updated, nil
}

// Cancel lets the requester withdraw a return that has not been handled yet.
func (s *service) Cancel(ctx context.Context, userID, returnID uuid.UUID) (*models.ReturnRequest, error) {
	request, err := s.Get(ctx, orders.Actor{UserID: userID, Role: enums.UserRoleUser}, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ReturnStatusRequested {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return request cannot be cancelled")
	}

	fields := map[string]any{
		"status":       enums.ReturnStatusCancelled,
		"cancelled_at": s.now().UTC(),
	}
	if err := s.repo.UpdateFields(ctx, request.ID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel return request")
	}

	updated, err := s.repo.GetByID(ctx, request.ID)
	if err != nil || updated == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload return request")
	}
	if s.notifier != nil && updated.Order != nil {
		s.notifier.ReturnUpdated(ctx, *updated.Order, *updated, "return.cancelled")
	}
	return updated, nil
}

// resolveItems validates the requested lines against the order and enforces
// the full-order policy. Partial quantities are rejected, not truncated.
func resolveItems(order models.Order, inputs []ItemInput) ([]models.ReturnItem, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}

	if len(inputs) == 0 {
		inputs = make([]ItemInput, 0, len(order.Items))
		for _, item := range order.Items {
			inputs = append(inputs, ItemInput{OrderItemID: item.ID, Quantity: item.Quantity})
		}
	}

	requested := make(map[uuid.UUID]int, len(inputs))
	items := make([]models.ReturnItem, 0, len(inputs))
	for _, input := range inputs {
		orderItem, ok := byID[input.OrderItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return item")
		}
		if input.Quantity <= 0 || input.Quantity > orderItem.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("invalid return quantity for %s", orderItem.ProductName))
		}
		requested[input.OrderItemID] += input.Quantity
		items = append(items, models.ReturnItem{
			ID:          uuid.New(),
			OrderItemID: orderItem.ID,
			Quantity:    input.Quantity,
		})
	}

	for _, item := range order.Items {
		if requested[item.ID] != item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "partial returns are not supported yet")
		}
	}
	return items, nil
}
