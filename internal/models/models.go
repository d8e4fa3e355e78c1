package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Category groups products; the flags tell the storefront which options a
// product in it carries.
type Category struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
	HasSizes    bool    `db:"has_sizes" json:"has_sizes"`
	HasColors   bool    `db:"has_colors" json:"has_colors"`
}

// Product is read-only from the storefront's point of view.
type Product struct {
	ID                  string          `db:"id" json:"id"`
	Name                string          `db:"name" json:"name"`
	Description         *string         `db:"description" json:"description,omitempty"`
	DetailedDescription *string         `db:"detailed_description" json:"detailed_description,omitempty"`
	Price               decimal.Decimal `db:"price" json:"price"`
	ImageURL            *string         `db:"image_url" json:"image_url,omitempty"`
	AdditionalImages    pq.StringArray  `db:"additional_images" json:"additional_images"`
	Category            *string         `db:"category" json:"category,omitempty"`
	CategoryID          *string         `db:"category_id" json:"category_id,omitempty"`
	SubcategoryID       *string         `db:"subcategory_id" json:"subcategory_id,omitempty"`
	Unit                *string         `db:"unit" json:"unit,omitempty"`
	MinQuantity         *int            `db:"min_quantity" json:"min_quantity,omitempty"`
	MaxQuantity         *int            `db:"max_quantity" json:"max_quantity,omitempty"`
	Specifications      JSONMap         `db:"specifications" json:"specifications,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`

	// Joined from categories; nil when the product has no category_id.
	CategoryName      *string `db:"category_name" json:"category_name,omitempty"`
	CategoryHasSizes  *bool   `db:"category_has_sizes" json:"-"`
	CategoryHasColors *bool   `db:"category_has_colors" json:"-"`
}

// CategoryRecord rebuilds the joined category, or nil.
func (p *Product) CategoryRecord() *Category {
	if p.CategoryID == nil || p.CategoryName == nil {
		return nil
	}
	c := &Category{ID: *p.CategoryID, Name: *p.CategoryName}
	if p.CategoryHasSizes != nil {
		c.HasSizes = *p.CategoryHasSizes
	}
	if p.CategoryHasColors != nil {
		c.HasColors = *p.CategoryHasColors
	}
	return c
}

// ProductVariant is a size/color specific sub-record of a product.
type ProductVariant struct {
	ID              string           `db:"id" json:"id"`
	ProductID       string           `db:"product_id" json:"product_id"`
	Size            *string          `db:"size" json:"size,omitempty"`
	Color           *string          `db:"color" json:"color,omitempty"`
	AdditionalPrice *decimal.Decimal `db:"additional_price" json:"additional_price,omitempty"`
	ImageURL        *string          `db:"image_url" json:"image_url,omitempty"`
}

// ShippingAddress is stored as JSONB on the order.
type ShippingAddress struct {
	Street       string `json:"street" validate:"required,min=5"`
	Number       string `json:"number" validate:"required,min=1"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood" validate:"required,min=2"`
	City         string `json:"city" validate:"required,min=2"`
	State        string `json:"state" validate:"required,min=2"`
	ZipCode      string `json:"zip_code" validate:"required,min=5"`
	Country      string `json:"country,omitempty"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// JSONMap is a free-form JSONB object.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	return scanJSON(src, m)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return nil
	default:
		return errors.New("unsupported JSON column type")
	}
}

// Order is a persisted purchase, independent of the live cart.
type Order struct {
	ID                    string          `db:"id" json:"id"`
	CustomerID            *string         `db:"customer_id" json:"customer_id,omitempty"`
	CustomerEmail         string          `db:"customer_email" json:"customer_email"`
	CustomerName          string          `db:"customer_name" json:"customer_name"`
	CustomerPhone         *string         `db:"customer_phone" json:"customer_phone,omitempty"`
	ShippingAddress       ShippingAddress `db:"shipping_address" json:"shipping_address"`
	PaymentMethod         string          `db:"payment_method" json:"payment_method"`
	Subtotal              decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax                   decimal.Decimal `db:"tax" json:"tax"`
	Total                 decimal.Decimal `db:"total" json:"total"`
	Notes                 *string         `db:"notes" json:"notes,omitempty"`
	Status                string          `db:"status" json:"status"`
	PaymentStatus         string          `db:"payment_status" json:"payment_status"`
	StripeSessionID       *string         `db:"stripe_session_id" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string         `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	PaidAt                *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	TrackingCode          *string         `db:"tracking_code" json:"tracking_code,omitempty"`
	TrackingURL           *string         `db:"tracking_url" json:"tracking_url,omitempty"`
	InvoiceNumber         *string         `db:"invoice_number" json:"invoice_number,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`

	CheckoutState CheckoutState        `db:"-" json:"checkout_state,omitempty"`
	Items         []OrderItem          `db:"-" json:"items,omitempty"`
	History       []OrderStatusHistory `db:"-" json:"history,omitempty"`
}

// OrderItem snapshots what was bought; it never follows later catalog edits.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	ProductID   *string         `db:"product_id" json:"product_id,omitempty"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	Size        *string         `db:"size" json:"size,omitempty"`
	Color       *string         `db:"color" json:"color,omitempty"`
	ImageURL    *string         `db:"image_url" json:"image_url,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// OrderStatusHistory is appended on every status change.
type OrderStatusHistory struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	EventID   *string   `db:"event_id" json:"event_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending       = "PENDING"
	OrderStatusPaid          = "PAID"
	OrderStatusProcessing    = "PROCESSING"
	OrderStatusShipped       = "SHIPPED"
	OrderStatusDelivered     = "DELIVERED"
	OrderStatusCancelled     = "CANCELLED"
	OrderStatusPaymentFailed = "PAYMENT_FAILED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment methods accepted at checkout
const (
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodPayPal     = "paypal"
)

// Review statuses
const (
	ReviewStatusApproved = "APPROVED"
	ReviewStatusPending  = "PENDING"
	ReviewStatusRejected = "REJECTED"
)

// Review is one shopper's rating of one product.
type Review struct {
	ID               string    `db:"id" json:"id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	OrderID          *string   `db:"order_id" json:"order_id,omitempty"`
	Rating           int       `db:"rating" json:"rating"`
	Comment          string    `db:"comment" json:"comment"`
	Status           string    `db:"status" json:"status"`
	VerifiedPurchase bool      `db:"verified_purchase" json:"verified_purchase"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// WishlistItem exists or it does not; there is no quantity.
type WishlistItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	ProductName     *string          `db:"product_name" json:"product_name,omitempty"`
	ProductPrice    *decimal.Decimal `db:"product_price" json:"product_price,omitempty"`
	ProductImageURL *string          `db:"product_image_url" json:"product_image_url,omitempty"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
