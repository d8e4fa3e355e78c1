package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogStore is the read side of the product tables.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetVariantsByProductID(ctx context.Context, productID string) ([]models.ProductVariant, error)
	GetVariantsByProductIDs(ctx context.Context, productIDs []string) (map[string][]models.ProductVariant, error)
}

// Sort orders accepted by ListProducts
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// AllProducts is the catch-all category filter.
const AllProducts = "All Products"

type ProductFilter struct {
	Search   string
	Category string
	Sort     string
}

// ProductView is a product with everything a listing or detail page needs.
type ProductView struct {
	models.Product
	CategoryRecord *models.Category        `json:"category_record,omitempty"`
	Variants       []models.ProductVariant `json:"variants"`
	AddAction      AddAction               `json:"add_action"`
}

// CatalogService handles catalog reads
type CatalogService struct {
	store  CatalogStore
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// ListProducts returns the filtered, sorted catalog.
func (s *CatalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]ProductView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	products = filterProducts(products, filter)
	sortProducts(products, filter.Sort)

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	variants, err := s.store.GetVariantsByProductIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	views := make([]ProductView, 0, len(products))
	for i := range products {
		views = append(views, newProductView(&products[i], variants[products[i].ID]))
	}
	return views, nil
}

// ListCategories returns all categories ordered by name.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	return s.store.ListCategories(ctx)
}

// GetProduct returns one product with its category and variants.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if !isUUID(id) {
		return nil, ErrProductNotFound
	}

	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	variants, err := s.store.GetVariantsByProductID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	view := newProductView(product, variants)
	return &view, nil
}

// ResolveVariant resolves a size/color selection against a product.
func (s *CatalogService) ResolveVariant(ctx context.Context, id string, sel Selection) (*Resolution, error) {
	view, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	res := Resolve(&view.Product, view.CategoryRecord, view.Variants, sel)
	return &res, nil
}

func newProductView(p *models.Product, variants []models.ProductVariant) ProductView {
	if variants == nil {
		variants = []models.ProductVariant{}
	}
	category := p.CategoryRecord()
	return ProductView{
		Product:        *p,
		CategoryRecord: category,
		Variants:       variants,
		AddAction:      DecideAddAction(p, category, variants),
	}
}

func filterProducts(products []models.Product, filter ProductFilter) []models.Product {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	category := strings.TrimSpace(filter.Category)
	if category == AllProducts {
		category = ""
	}

	out := products[:0:0]
	for _, p := range products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(derefString(p.Description)), search) {
			continue
		}
		if category != "" &&
			!strings.EqualFold(derefString(p.CategoryName), category) &&
			!strings.EqualFold(derefString(p.Category), category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortProducts(products []models.Product, order string) {
	switch order {
	case SortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool { return products[i].Price.LessThan(products[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool { return products[i].Price.GreaterThan(products[j].Price) })
	case SortName:
		sort.SliceStable(products, func(i, j int) bool {
			return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
		})
	default:
		sort.SliceStable(products, func(i, j int) bool { return products[i].CreatedAt.After(products[j].CreatedAt) })
	}
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
