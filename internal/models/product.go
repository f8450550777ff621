package models

import "time"

// Product carries the stock field the reconciliation engine reserves
// against. Catalog attributes beyond that are owned by the storefront.
type Product struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Price         int64     `json:"price" db:"price"` // Whole VND
	StockQuantity int       `json:"stock_quantity" db:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
