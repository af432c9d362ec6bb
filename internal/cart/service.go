package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
	pkgerrors "github.com/auracommerce/aura-backend/pkg/errors"
)

// View is the cart payload returned to clients, with per-line pricing
// resolved the same way checkout resolves it.
type View struct {
	ID         uuid.UUID  `json:"id"`
	Items      []ViewItem `json:"items"`
	TotalItems int        `json:"totalItems"`
	Subtotal   int64      `json:"subtotal"`
}

// ViewItem is one cart line with its resolved unit price.
type ViewItem struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"productId"`
	VariantID      *uuid.UUID `json:"variantId,omitempty"`
	CategoryID     uuid.UUID  `json:"categoryId"`
	ProductName    string     `json:"productName"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unitPrice"`
	LineTotalCents int64      `json:"lineTotal"`
	InStock        bool       `json:"inStock"`
}

// AddItemInput carries the fields for adding a product to the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service manages the per-user cart.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) (*View, error)
}

type service struct {
	repo Repository
	db   *gorm.DB
}

// NewService builds a cart service.
func NewService(repo Repository, db *gorm.DB) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database handle required")
	}
	return &service{repo: repo, db: db}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart.UserID)
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	var product models.Product
	err = s.db.WithContext(ctx).First(&product, "id = ?", input.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.Status != enums.ProductStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	maxStock := product.Stock
	if input.VariantID != nil {
		var variant models.ProductVariant
		err := s.db.WithContext(ctx).
			First(&variant, "id = ? AND product_id = ?", *input.VariantID, product.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant not found")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		maxStock = variant.Stock
	}
	if maxStock <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStock, "product is out of stock")
	}

	existing, err := s.repo.FindItem(ctx, cart.ID, product.ID, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find cart item")
	}

	if existing != nil {
		next := min(existing.Quantity+quantity, maxStock)
		if err := s.repo.UpdateItemQuantity(ctx, existing.ID, next); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
	} else {
		item := models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: product.ID,
			VariantID: input.VariantID,
			Quantity:  min(quantity, maxStock),
		}
		if err := s.repo.CreateItem(ctx, &item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
	}

	return s.buildView(ctx, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.GetItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	var product models.Product
	err = s.db.WithContext(ctx).First(&product, "id = ?", item.ProductID).Error
	if err != nil || product.Status != enums.ProductStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product not available")
	}

	maxStock := product.Stock
	if item.VariantID != nil {
		var variant models.ProductVariant
		if err := s.db.WithContext(ctx).First(&variant, "id = ?", *item.VariantID).Error; err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant not available")
		}
		maxStock = variant.Stock
	}

	if err := s.repo.UpdateItemQuantity(ctx, item.ID, min(quantity, maxStock)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.buildView(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.GetItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return s.buildView(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return s.buildView(ctx, userID)
}

func (s *service) ensureCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart != nil {
		return cart, nil
	}
	fresh := models.Cart{ID: uuid.New(), UserID: userID}
	if err := s.repo.Create(ctx, &fresh); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return &fresh, nil
}

func (s *service) buildView(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.repo.GetWithItems(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}

	view := &View{ID: cart.ID, Items: make([]ViewItem, 0, len(cart.Items))}
	for _, item := range cart.Items {
		if item.Product == nil {
			continue
		}
		unit := item.Product.EffectivePriceCents()
		stock := item.Product.Stock
		if item.VariantID != nil {
			for _, variant := range item.Product.Variants {
				if variant.ID == *item.VariantID {
					if variant.PriceCents != nil {
						unit = *variant.PriceCents
					}
					stock = variant.Stock
					break
				}
			}
		}
		line := ViewItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			CategoryID:     item.Product.CategoryID,
			ProductName:    item.Product.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: unit,
			LineTotalCents: unit * int64(item.Quantity),
			InStock:        stock > 0,
		}
		view.Items = append(view.Items, line)
		view.TotalItems += item.Quantity
		view.Subtotal += line.LineTotalCents
	}
	return view, nil
}
