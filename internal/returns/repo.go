package returns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	"github.com/auracommerce/aura-backend/pkg/pagination"
)

// OpenReturnStatuses are the states that count as an in-progress return;
// at most one such request may exist per order.
var OpenReturnStatuses = []enums.ReturnStatus{
	enums.ReturnStatusRequested,
	enums.ReturnStatusApproved,
	enums.ReturnStatusReceived,
}

// Filter narrows return listings to a user or a vendor's shop.
type Filter struct {
	UserID *uuid.UUID
	ShopID *uuid.UUID
}

// Repository manages return request persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error)
	List(ctx context.Context, filter Filter, params pagination.Params) ([]models.ReturnRequest, int64, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a returns repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.OrderItem").
		Preload("Order").
		Preload("Order.Items").
		First(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, OpenReturnStatuses).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) List(ctx context.Context, filter Filter, params pagination.Params) ([]models.ReturnRequest, int64, error) {
	normalized := pagination.Normalize(params)

	query := r.db.WithContext(ctx).Model(&models.ReturnRequest{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ShopID != nil {
		query = query.Where(
			"order_id IN (?)",
			r.db.Model(&models.Order{}).Select("id").Where("shop_id = ?", *filter.ShopID),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []models.ReturnRequest
	if err := query.
		Preload("Items").
		Preload("Order").
		Order("created_at DESC").
		Offset(normalized.Offset()).
		Limit(normalized.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.ReturnRequest{}).
		Where("id = ?", id).
		Updates(fields).Error
}
