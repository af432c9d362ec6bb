package settings

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/pkg/db/models"
)

// Repository manages the single store settings row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	First(ctx context.Context) (*models.StoreSettings, error)
	Create(ctx context.Context, row *models.StoreSettings) error
	Save(ctx context.Context, row *models.StoreSettings) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) First(ctx context.Context) (*models.StoreSettings, error) {
	var row models.StoreSettings
	err := r.db.WithContext(ctx).Order("created_at ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, row *models.StoreSettings) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) Save(ctx context.Context, row *models.StoreSettings) error {
	return r.db.WithContext(ctx).Save(row).Error
}
