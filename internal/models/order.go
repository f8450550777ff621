package models

import "time"

// OrderStatus represents the status of an order or booking
// Matches PostgreSQL ENUM: order_status
type OrderStatus string

const (
	OrderStatusDraft           OrderStatus = "draft"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order is the owning entity of a payment intent. Bookings and shop orders
// share the table; Kind carries the discriminator.
type Order struct {
	ID   int64     `json:"id" db:"id"`
	Kind OwnerType `json:"kind" db:"kind"`

	Status      OrderStatus `json:"status" db:"status"`
	TotalAmount int64       `json:"total_amount" db:"total_amount"` // Whole VND
	Currency    string      `json:"currency" db:"currency"`

	CustomerName  string  `json:"customer_name" db:"customer_name"`
	CustomerPhone *string `json:"customer_phone,omitempty" db:"customer_phone"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OrderItem is one product line of an order. Reservation quantity comes from
// these lines when the payment intent is created.
type OrderItem struct {
	ID        int64 `json:"id" db:"id"`
	OrderID   int64 `json:"order_id" db:"order_id"`
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
	UnitPrice int64 `json:"unit_price" db:"unit_price"`
}
