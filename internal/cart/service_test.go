package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

func TestGetCreatesCartLazily(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	view, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Items) != 0 || view.Subtotal != 0 {
		t.Fatalf("expected empty cart, got %+v", view)
	}

	var count int64
	if err := db.Model(&models.Cart{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one cart row, got %d", count)
	}
}

func TestAddItemMergesAndCapsAtStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	product := seedProduct(t, db, 3, 2000)

	view, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: product.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if view.TotalItems != 2 || view.Subtotal != 4000 {
		t.Fatalf("unexpected view %+v", view)
	}

	// adding the same product merges the line and caps at available stock
	view, err = svc.AddItem(ctx, userID, AddItemInput{ProductID: product.ID, Quantity: 5})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line capped at 3, got %+v", view.Items)
	}
}

func TestAddItemRejectsUnpublishedProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	product := seedProduct(t, db, 3, 2000)
	if err := db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("status", enums.ProductStatusDraft).Error; err != nil {
		t.Fatalf("unpublish: %v", err)
	}

	_, err := svc.AddItem(ctx, uuid.New(), AddItemInput{ProductID: product.ID, Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddItemVariantPricing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	product := seedProduct(t, db, 10, 2000)
	price := int64(2500)
	variant := models.ProductVariant{
		ID:         uuid.New(),
		ProductID:  product.ID,
		Name:       "Large",
		SKU:        "SKU-L",
		PriceCents: &price,
		Stock:      2,
	}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	view, err := svc.AddItem(ctx, userID, AddItemInput{
		ProductID: product.ID,
		VariantID: &variant.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("add variant: %v", err)
	}
	if view.Items[0].UnitPriceCents != 2500 {
		t.Fatalf("expected variant price, got %d", view.Items[0].UnitPriceCents)
	}
}

func TestUpdateRemoveAndClear(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	userID := uuid.New()

	product := seedProduct(t, db, 10, 1000)
	view, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: product.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	itemID := view.Items[0].ID

	view, err = svc.UpdateItem(ctx, userID, itemID, 4)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", view.Items[0].Quantity)
	}

	if _, err := svc.UpdateItem(ctx, userID, itemID, 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}

	view, err = svc.RemoveItem(ctx, userID, itemID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart after remove")
	}

	if _, err := svc.RemoveItem(ctx, userID, itemID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on double remove, got %v", err)
	}

	if _, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	view, err = svc.Clear(ctx, userID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected cleared cart")
	}
}

func seedProduct(t *testing.T, db *gorm.DB, stock int, price int64) models.Product {
	t.Helper()
	product := models.Product{
		ID:             uuid.New(),
		ShopID:         uuid.New(),
		CategoryID:     uuid.New(),
		Name:           "Walnut Desk Organizer",
		SKU:            "SKU-DESK",
		Status:         enums.ProductStatusPublished,
		BasePriceCents: price,
		Stock:          stock,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), db)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Cart{},
		&models.CartItem{},
		&models.Product{},
		&models.ProductVariant{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
