package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
	"github.com/auracommerce/aura-backend/pkg/logger"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

// ListResult wraps a page of notifications with the caller's unread count.
type ListResult struct {
	Items       []models.Notification `json:"items"`
	Meta        pagination.Meta       `json:"meta"`
	UnreadCount int64                 `json:"unreadCount"`
}

// Service manages the customer notification feed. OrderUpdated and
// ReturnUpdated are fire-and-forget: delivery failures are logged, never
// returned, so a failed notification cannot fail the transition that
// triggered it.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	OrderUpdated(ctx context.Context, order models.Order, event string)
	ReturnUpdated(ctx context.Context, order models.Order, request models.ReturnRequest, event string)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the notification service. The logger is optional.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	items, total, err := s.repo.List(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	return &ListResult{
		Items:       items,
		Meta:        pagination.NewMeta(params, total),
		UnreadCount: unread,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// OrderUpdated records a notification for an order lifecycle event. Unknown
// events fall back to a generic update message.
func (s *service) OrderUpdated(ctx context.Context, order models.Order, event string) {
	title, message := orderCopy(order, event)
	s.deliver(ctx, models.Notification{
		ID:      uuid.New(),
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrder,
		Title:   title,
		Message: message,
		Link:    orderLink(order),
	}, event)
}

// ReturnUpdated records a notification for a return lifecycle event.
func (s *service) ReturnUpdated(ctx context.Context, order models.Order, request models.ReturnRequest, event string) {
	title, message := returnCopy(order, request)
	s.deliver(ctx, models.Notification{
		ID:      uuid.New(),
		UserID:  request.UserID,
		Type:    enums.NotificationTypeReturn,
		Title:   title,
		Message: message,
		Link:    orderLink(order),
	}, event)
}

func (s *service) deliver(ctx context.Context, notification models.Notification, event string) {
	if err := s.repo.Create(ctx, &notification); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"user_id": notification.UserID.String(),
				"event":   event,
			})
			s.logg.Error(logCtx, "notification delivery failed", err)
		}
	}
}

func orderCopy(order models.Order, event string) (string, string) {
	switch event {
	case "order.created":
		return "Order placed",
			fmt.Sprintf("Your order %s has been placed.", order.OrderNumber)
	case "payment_intent.succeeded", "order.CONFIRMED":
		return "Payment received",
			fmt.Sprintf("Payment for order %s was received. We are preparing your items.", order.OrderNumber)
	case "payment_intent.payment_failed":
		return "Payment failed",
			fmt.Sprintf("Payment for order %s failed and the order was cancelled.", order.OrderNumber)
	case "order.PROCESSING":
		return "Order processing",
			fmt.Sprintf("Your order %s is being processed.", order.OrderNumber)
	case "order.SHIPPED":
		return "Order shipped",
			fmt.Sprintf("Your order %s is on its way.", order.OrderNumber)
	case "order.DELIVERED":
		return "Order delivered",
			fmt.Sprintf("Your order %s has been delivered.", order.OrderNumber)
	case "order.CANCELLED":
		return "Order cancelled",
			fmt.Sprintf("Your order %s has been cancelled.", order.OrderNumber)
	case "order.refunded", "order.REFUNDED", "charge.refunded":
		return "Order refunded",
			fmt.Sprintf("Your order %s has been refunded.", order.OrderNumber)
	default:
		return "Order update",
			fmt.Sprintf("Your order %s has been updated.", order.OrderNumber)
	}
}

func returnCopy(order models.Order, request models.ReturnRequest) (string, string) {
	switch request.Status {
	case enums.ReturnStatusRequested:
		return "Return requested",
			fmt.Sprintf("We received your return request for order %s.", order.OrderNumber)
	case enums.ReturnStatusApproved:
		return "Return approved",
			fmt.Sprintf("Your return for order %s was approved. Please ship the items back.", order.OrderNumber)
	case enums.ReturnStatusRejected:
		return "Return rejected",
			fmt.Sprintf("Your return request for order %s was rejected.", order.OrderNumber)
	case enums.ReturnStatusReceived:
		return "Return received",
			fmt.Sprintf("We received the returned items for order %s.", order.OrderNumber)
	case enums.ReturnStatusRefunded:
		return "Return refunded",
			fmt.Sprintf("Your return for order %s has been refunded.", order.OrderNumber)
	default:
		return "Return update",
			fmt.Sprintf("Your return for order %s has been updated.", order.OrderNumber)
	}
}

func orderLink(order models.Order) *string {
	link := "/orders/" + order.ID.String()
	return &link
}
