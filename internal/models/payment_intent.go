package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// PAYMENT INTENT TYPES & STATUSES (matches DB ENUMs)
// ============================================================================

// PaymentIntentStatus represents the status of a payment intent
// Matches PostgreSQL ENUM: payment_intent_status
type PaymentIntentStatus string

const (
	IntentStatusPending   PaymentIntentStatus = "pending"   // Awaiting a matching bank transaction
	IntentStatusMatched   PaymentIntentStatus = "matched"   // Bank transaction matched, owner paid
	IntentStatusExpired   PaymentIntentStatus = "expired"   // TTL elapsed, stock released
	IntentStatusCancelled PaymentIntentStatus = "cancelled" // Owner cancelled before payment
)

// IsTerminal reports whether no transition may leave this status.
func (s PaymentIntentStatus) IsTerminal() bool {
	return s == IntentStatusMatched || s == IntentStatusExpired || s == IntentStatusCancelled
}

// OwnerType identifies the entity a payment intent collects money for
type OwnerType string

const (
	OwnerTypeOrder   OwnerType = "order"
	OwnerTypeBooking OwnerType = "booking"
)

// Valid reports whether the owner type is one of the known values
func (t OwnerType) Valid() bool {
	return t == OwnerTypeOrder || t == OwnerTypeBooking
}

// ============================================================================
// MATCH RESULT
// ============================================================================

// MatchResult is the outcome of attempting to credit a bank transaction
// against a payment intent. Callers must handle every variant explicitly.
type MatchResult string

const (
	MatchConfirmed        MatchResult = "confirmed"         // Intent flipped to matched in this call
	MatchAlreadyConfirmed MatchResult = "already_confirmed" // Same transaction re-delivered, no-op
	MatchConflict         MatchResult = "conflict"          // Matched earlier with a different transaction
	MatchRejected         MatchResult = "rejected"          // Expired/cancelled intent or amount mismatch
)

// ============================================================================
// PAYMENT INTENT MODEL (payment_intents table)
// ============================================================================

// PaymentIntent represents a pending request to receive a bank transfer of a
// specific amount under a unique reference code.
type PaymentIntent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerType OwnerType `json:"owner_type" db:"owner_type"`
	OwnerID   int64     `json:"owner_id" db:"owner_id"`

	// ReferenceCode is generated at creation and never changes. Customers put
	// it in the transfer note; the matcher looks for it in the bank-supplied
	// description.
	ReferenceCode string `json:"reference_code" db:"reference_code"`

	// ExpectedAmount is in whole VND. Matching is exact equality.
	ExpectedAmount int64  `json:"expected_amount" db:"expected_amount"`
	Currency       string `json:"currency" db:"currency"`

	Status PaymentIntentStatus `json:"status" db:"status"`

	// MatchedTransactionID is set if and only if status is matched.
	MatchedTransactionID *string    `json:"matched_transaction_id,omitempty" db:"matched_transaction_id"`
	MatchedAt            *time.Time `json:"matched_at,omitempty" db:"matched_at"`

	// TTL management
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	ExpiredAt *time.Time `json:"expired_at,omitempty" db:"expired_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsExpired checks if the intent has passed its TTL at the given instant
func (i *PaymentIntent) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// CreateIntentResponse is returned when a payment intent is created
type CreateIntentResponse struct {
	IntentID      uuid.UUID `json:"intent_id"`
	ReferenceCode string    `json:"reference_code"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	QRPayload     string    `json:"qr_payload"`
	QRImageURL    string    `json:"qr_image_url"`
	ExpiresAt     time.Time `json:"expires_at"`
	TTLSeconds    int       `json:"ttl_seconds"` // Remaining TTL for countdown
}

// PaymentCheckStatus is the customer-facing view of an intent
type PaymentCheckStatus string

const (
	CheckStatusPaid    PaymentCheckStatus = "paid"
	CheckStatusPending PaymentCheckStatus = "pending"
	CheckStatusExpired PaymentCheckStatus = "expired"
)

// CheckPaymentResponse is the response of the check-payment action.
// Message is the only text shown to the customer; raw errors stay in logs.
type CheckPaymentResponse struct {
	Status       PaymentCheckStatus `json:"status"`
	Message      string             `json:"message"`
	RedirectHint string             `json:"redirect_hint,omitempty"`
}
