package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of reconciliation event
type PaymentEventType string

const (
	PaymentEventIntentCreated   PaymentEventType = "intent_created"
	PaymentEventMatchConfirmed  PaymentEventType = "match_confirmed"
	PaymentEventMatchDuplicate  PaymentEventType = "match_duplicate"  // Second transaction matched the same intent
	PaymentEventMatchConflict   PaymentEventType = "match_conflict"   // Match arrived for an already-matched intent
	PaymentEventMatchRejected   PaymentEventType = "match_rejected"   // Match arrived after expiry/cancellation
	PaymentEventIntentExpired   PaymentEventType = "intent_expired"
	PaymentEventIntentCancelled PaymentEventType = "intent_cancelled"
	PaymentEventStockConfirmed  PaymentEventType = "stock_confirmed"
	PaymentEventFeedRateLimited PaymentEventType = "feed_rate_limited"
	PaymentEventFeedError       PaymentEventType = "feed_error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceCustomer PaymentEventSource = "customer" // Client-initiated check-payment call
	PaymentSourceCron     PaymentEventSource = "cron"     // Background sweep
	PaymentSourceAdmin    PaymentEventSource = "admin"    // Manual sweep trigger
)

// JSONB stores a free-form JSON object column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// PaymentAudit is an immutable log entry for reconciliation events.
// Conflicts and amount mismatches recorded here are the operator's review
// queue; they are never auto-resolved.
type PaymentAudit struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	IntentID      *uuid.UUID `json:"intent_id,omitempty" db:"intent_id"`
	ReferenceCode *string    `json:"reference_code,omitempty" db:"reference_code"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	// Amount tracking in whole VND, compared exactly
	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	// The bank-side transaction involved, if any
	BankTransactionID *string `json:"bank_transaction_id,omitempty" db:"bank_transaction_id"`
	BankDescription   *string `json:"bank_description,omitempty" db:"bank_description"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Extra context (duplicate candidate IDs, feed window bounds, ...)
	Details JSONB `json:"details,omitempty" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetIntent sets the intent ID for the audit
func (pa *PaymentAudit) SetIntent(intentID uuid.UUID) *PaymentAudit {
	pa.IntentID = &intentID
	return pa
}

// SetReference sets our payment reference code
func (pa *PaymentAudit) SetReference(ref string) *PaymentAudit {
	pa.ReferenceCode = &ref
	return pa
}

// SetAmounts records both sides of the amount comparison and returns whether
// they match exactly
func (pa *PaymentAudit) SetAmounts(expected, received int64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	match := expected == received
	pa.AmountsMatch = &match
	return match
}

// SetBankTransaction records the bank-side transaction involved
func (pa *PaymentAudit) SetBankTransaction(tx BankTransaction) *PaymentAudit {
	pa.BankTransactionID = &tx.TransactionID
	pa.BankDescription = &tx.Description
	return pa
}

// SetError records an error message
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetDetails attaches free-form context
func (pa *PaymentAudit) SetDetails(details map[string]interface{}) *PaymentAudit {
	pa.Details = JSONB(details)
	return pa
}
