package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

// Line identifies the stock a single order line holds. VariantID is set when
// reserving from the cart; restore paths only know the snapshotted SKU, so
// they set FromVariant instead.
type Line struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	FromVariant bool
	SKU         string
	ProductName string
	Quantity    int
}

// HasVariant reports whether the line was sold against a product variant.
func (l Line) HasVariant() bool {
	return l.VariantID != nil || l.FromVariant
}

// Service guards the stock counters. Reserve must run inside the checkout
// transaction so a failed line rolls back every earlier decrement.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, line Line) error
	Restore(ctx context.Context, tx *gorm.DB, lines []Line) error
}

type service struct{}

// NewService returns the default stock ledger implementation.
func NewService() Service {
	return service{}
}

// Reserve decrements stock with a qty guard in the WHERE clause so two
// concurrent checkouts can never both win the last unit.
func (service) Reserve(ctx context.Context, tx *gorm.DB, line Line) error {
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}

	if line.VariantID != nil {
		res := tx.WithContext(ctx).Exec(`
			UPDATE product_variants
			SET stock = stock - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND product_id = ? AND stock >= ?
		`, line.Quantity, *line.VariantID, line.ProductID, line.Quantity)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve variant stock")
		}
		if res.RowsAffected == 0 {
			return insufficientStock(line)
		}
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock - ?,
			sold_count = sold_count + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock >= ?
	`, line.Quantity, line.Quantity, line.ProductID, line.Quantity)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve product stock")
	}
	if res.RowsAffected == 0 {
		return insufficientStock(line)
	}
	return nil
}

// Restore puts stock back for the given lines. Variants are matched by SKU
// because order items only snapshot the variant SKU, not its id.
func (service) Restore(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET stock = stock + ?,
				sold_count = sold_count - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, line.Quantity, line.Quantity, line.ProductID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore product stock")
		}

		if line.SKU != "" && line.HasVariant() {
			res := tx.WithContext(ctx).Exec(`
				UPDATE product_variants
				SET stock = stock + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE sku = ? AND product_id = ?
			`, line.Quantity, line.SKU, line.ProductID)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore variant stock")
			}
		}
	}
	return nil
}

func insufficientStock(line Line) error {
	msg := "insufficient stock"
	if line.ProductName != "" {
		msg = fmt.Sprintf("insufficient stock for %s", line.ProductName)
	}
	return pkgerrors.New(pkgerrors.CodeStock, msg).WithDetails(map[string]any{
		"product_id": line.ProductID,
		"requested":  line.Quantity,
	})
}
