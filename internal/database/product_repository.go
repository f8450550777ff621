package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// ProductRepository adjusts stock for payment reservations. Both directions
// are single atomic statements; a read-then-write pair here would over-sell
// under concurrent requests.
type ProductRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *sqlx.DB, logger *logrus.Logger) *ProductRepository {
	return &ProductRepository{db: db, logger: logger}
}

// Reserve decrements stock if enough is available. The WHERE guard makes
// the decrement conditional, so concurrent reservations past available
// stock fail with ErrInsufficientStock instead of going negative.
func (r *ProductRepository) Reserve(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reservation quantity must be positive, got %d", qty)
	}

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = $3
		WHERE id = $1 AND stock_quantity >= $2`

	result, err := r.db.ExecContext(ctx, query, productID, qty, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Release restores previously reserved stock. Invoked when an intent
// expires or is cancelled.
func (r *ProductRepository) Release(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = $3
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, productID, qty, time.Now())
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm finalizes a reservation on payment success. The quantity was
// already taken at reservation time, so this only leaves an audit trail.
func (r *ProductRepository) Confirm(ctx context.Context, productID int64, qty int) error {
	r.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"quantity":   qty,
	}).Info("Stock reservation confirmed")
	return nil
}

// GetStock returns the current available stock of a product
func (r *ProductRepository) GetStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := r.db.GetContext(ctx, &stock, `SELECT stock_quantity FROM products WHERE id = $1`, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stock: %w", err)
	}
	return stock, nil
}
