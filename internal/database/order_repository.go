package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vietcart/payment-backend/internal/models"
)

// OrderRepository is the narrow contract the reconciliation engine consumes
// from the storefront: look up an owner, read its total and flip its status.
// Orders and bookings share the table under a kind discriminator.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID retrieves an order by ID and kind
func (r *OrderRepository) GetByID(ctx context.Context, kind models.OwnerType, id int64) (*models.Order, error) {
	var order models.Order
	query := `
		SELECT id, kind, status, total_amount, currency, customer_name,
		       customer_phone, created_at, updated_at
		FROM orders
		WHERE id = $1 AND kind = $2`

	err := r.db.GetContext(ctx, &order, query, id, kind)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return &order, nil
}

// GetTotalAmount returns the total amount of an order in whole VND
func (r *OrderRepository) GetTotalAmount(ctx context.Context, kind models.OwnerType, id int64) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT total_amount FROM orders WHERE id = $1 AND kind = $2`, id, kind)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch order total: %w", err)
	}
	return total, nil
}

// SetStatus transitions an order from one status to another. The update is
// conditional on the current status; 0 affected rows means the order moved
// concurrently and the caller's transition lost.
func (r *OrderRepository) SetStatus(ctx context.Context, kind models.OwnerType, id int64, from, to models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $4, updated_at = $5
		WHERE id = $1 AND kind = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, kind, from, to, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("order %s/%d is not in status %s", kind, id, from)
	}
	return nil
}

// GetItems returns the product lines of an order. The inventory adjuster
// reserves against these when the payment intent is created.
func (r *OrderRepository) GetItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	query := `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	err := r.db.SelectContext(ctx, &items, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order items: %w", err)
	}
	return items, nil
}
