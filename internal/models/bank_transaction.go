package models

import "time"

// BankTransaction is a normalized transaction from the external bank
// aggregator feed. It is read-only from this system's perspective and is
// never persisted beyond the current reconciliation pass; only the matched
// transaction ID is stored on the intent for audit.
type BankTransaction struct {
	TransactionID string    `json:"transaction_id"`
	Description   string    `json:"description"` // Free text, bank-supplied transfer note
	Amount        int64     `json:"amount"`      // Whole VND, credits only
	OccurredAt    time.Time `json:"occurred_at"`
}
