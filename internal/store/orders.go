package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/lib/pq"
)

// ErrStaleStatus is returned when an order changed status between read and write.
var ErrStaleStatus = errors.New("order status changed concurrently")

const orderColumns = `
	id, customer_id, customer_email, customer_name, customer_phone, shipping_address,
	payment_method, subtotal, tax, total, notes, status, payment_status,
	stripe_session_id, stripe_payment_intent_id, paid_at, tracking_code, tracking_url,
	invoice_number, created_at, updated_at`

// CreateOrder inserts the order together with its first history row.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (id, customer_id, customer_email, customer_name, customer_phone,
			shipping_address, payment_method, subtotal, tax, total, notes, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.ID, order.CustomerID, order.CustomerEmail, order.CustomerName, order.CustomerPhone,
		order.ShippingAddress, order.PaymentMethod, order.Subtotal, order.Tax, order.Total,
		order.Notes, order.Status, order.PaymentStatus,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, notes) VALUES ($1, $2, $3)",
		order.ID, order.Status, "Order created")
	if err != nil {
		return fmt.Errorf("failed to insert order history: %w", err)
	}

	return tx.Commit()
}

// CreateOrderItems inserts all items of an order atomically.
func (s *Store) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price,
			total_price, size, color, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	for i := range items {
		item := &items[i]
		err := tx.GetContext(ctx, &item.ID, query,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
			item.TotalPrice, item.Size, item.Color, item.ImageURL)
		if err != nil {
			return fmt.Errorf("failed to insert order item %q: %w", item.ProductName, err)
		}
	}

	return tx.Commit()
}

// DeleteOrder removes an order and, by cascade, its items and history.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	return err
}

// SetCheckoutSession records the processor session created for the order.
func (s *Store) SetCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET stripe_session_id = $1, updated_at = NOW() WHERE id = $2",
		sessionID, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT"+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByEmail retrieves a customer's orders, newest first. Emails
// compare case-insensitively.
func (s *Store) GetOrdersByEmail(ctx context.Context, email string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT"+orderColumns+" FROM orders WHERE lower(customer_email) = lower($1) ORDER BY created_at DESC", email)
	return orders, err
}

// GetOrderItemsByOrderIDs loads the items of several orders in one query.
func (s *Store) GetOrderItemsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	grouped := make(map[string][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return grouped, nil
	}

	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price,
			size, color, image_url, created_at
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		grouped[item.OrderID] = append(grouped[item.OrderID], item)
	}
	return grouped, nil
}

// GetOrderHistory returns the status history of an order, oldest first.
func (s *Store) GetOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	history := []models.OrderStatusHistory{}
	err := s.db.SelectContext(ctx, &history,
		"SELECT id, order_id, status, notes, event_id, created_at FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id",
		orderID)
	return history, err
}

// OrderContainsProduct is used to mark verified purchases. Only paid orders
// count.
func (s *Store) OrderContainsProduct(ctx context.Context, orderID, customerID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM orders o
			JOIN order_items i ON i.order_id = o.id
			WHERE o.id = $1 AND o.customer_id = $2 AND i.product_id = $3
				AND o.payment_status = $4
		)`, orderID, customerID, productID, models.PaymentStatusCompleted)
	return exists, err
}

// PaymentUpdate is one processor event applied to one order.
type PaymentUpdate struct {
	EventID         string
	EventType       string
	OrderID         string
	Status          string
	PaymentStatus   string
	SessionID       *string
	PaymentIntentID *string
	PaidAt          *time.Time
	Notes           string
}

// ApplyPaymentUpdate marks the event processed, updates the order and appends
// a history row in a single transaction. It returns applied=false without
// touching the order when the event id was already processed.
func (s *Store) ApplyPaymentUpdate(ctx context.Context, u PaymentUpdate) (bool, *models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		u.EventID, u.EventType)
	if err != nil {
		return false, nil, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil, nil
	}

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		UPDATE orders SET
			status = $1,
			payment_status = $2,
			stripe_session_id = COALESCE($3, stripe_session_id),
			stripe_payment_intent_id = COALESCE($4, stripe_payment_intent_id),
			paid_at = COALESCE($5, paid_at),
			updated_at = NOW()
		WHERE id = $6
		RETURNING`+orderColumns,
		u.Status, u.PaymentStatus, u.SessionID, u.PaymentIntentID, u.PaidAt, u.OrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, fmt.Errorf("order %s: %w", u.OrderID, ErrNotFound)
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to update order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, notes, event_id) VALUES ($1, $2, $3, $4)",
		u.OrderID, u.Status, u.Notes, u.EventID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to insert order history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, err
	}
	return true, &order, nil
}

// StatusChange moves an order from an expected status to a new one.
type StatusChange struct {
	OrderID      string
	FromStatus   string
	ToStatus     string
	Notes        string
	TrackingCode *string
	TrackingURL  *string
}

// TransitionOrderStatus applies c only if the order is still in c.FromStatus.
func (s *Store) TransitionOrderStatus(ctx context.Context, c StatusChange) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		UPDATE orders SET
			status = $1,
			tracking_code = COALESCE($2, tracking_code),
			tracking_url = COALESCE($3, tracking_url),
			updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING`+orderColumns,
		c.ToStatus, c.TrackingCode, c.TrackingURL, c.OrderID, c.FromStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", c.OrderID, ErrStaleStatus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, notes) VALUES ($1, $2, $3)",
		c.OrderID, c.ToStatus, c.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}
