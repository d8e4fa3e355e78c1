package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = `
	p.id, p.name, p.description, p.detailed_description, p.price, p.image_url,
	p.additional_images, p.category, p.category_id, p.subcategory_id, p.unit,
	p.min_quantity, p.max_quantity, p.specifications, p.created_at,
	c.name AS category_name, c.has_sizes AS category_has_sizes, c.has_colors AS category_has_colors`

const productFrom = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id`

// ListProducts returns every product with its category joined, newest first.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT"+productColumns+productFrom+" ORDER BY p.created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT"+productColumns+productFrom+" WHERE p.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT id, name, description, has_sizes, has_colors FROM categories ORDER BY name")
	return categories, err
}

// GetVariantsByProductID returns the size/color variants of a product.
func (s *Store) GetVariantsByProductID(ctx context.Context, productID string) ([]models.ProductVariant, error) {
	variants := []models.ProductVariant{}
	err := s.db.SelectContext(ctx, &variants,
		"SELECT id, product_id, size, color, additional_price, image_url FROM product_variants WHERE product_id = $1 ORDER BY id",
		productID)
	return variants, err
}

// GetVariantsByProductIDs groups variants per product for listing pages.
func (s *Store) GetVariantsByProductIDs(ctx context.Context, productIDs []string) (map[string][]models.ProductVariant, error) {
	grouped := make(map[string][]models.ProductVariant, len(productIDs))
	if len(productIDs) == 0 {
		return grouped, nil
	}

	var variants []models.ProductVariant
	err := s.db.SelectContext(ctx, &variants,
		"SELECT id, product_id, size, color, additional_price, image_url FROM product_variants WHERE product_id = ANY($1) ORDER BY id",
		pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		grouped[v.ProductID] = append(grouped[v.ProductID], v)
	}
	return grouped, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
