package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/vietcart/payment-backend/internal/models"
)

// PaymentIntentRepository handles payment intent database operations.
// All transitions out of 'pending' are conditional updates keyed on the
// current status, so they stay linearizable per intent without application
// locks and remain safe when several workers reconcile the same intent.
type PaymentIntentRepository struct {
	db *sqlx.DB
}

// NewPaymentIntentRepository creates a new PaymentIntentRepository
func NewPaymentIntentRepository(db *sqlx.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

const paymentIntentColumns = `
	id, owner_type, owner_id, reference_code, expected_amount, currency,
	status, matched_transaction_id, matched_at, expires_at, expired_at,
	created_at, updated_at`

// ============================================================================
// INTENT CREATION & LOOKUP
// ============================================================================

// CreateIntent inserts a new intent unless the owner already has one in
// pending or matched state. Returns ErrDuplicateIntent in that case.
func (r *PaymentIntentRepository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	intent.ID = uuid.New()
	intent.Status = models.IntentStatusPending
	intent.CreatedAt = time.Now()
	intent.UpdatedAt = intent.CreatedAt

	query := `
		INSERT INTO payment_intents (
			id, owner_type, owner_id, reference_code, expected_amount,
			currency, status, expires_at, created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (
			SELECT 1 FROM payment_intents
			WHERE owner_type = $2 AND owner_id = $3
			  AND status IN ('pending', 'matched')
		)`

	result, err := r.db.ExecContext(ctx, query,
		intent.ID, intent.OwnerType, intent.OwnerID, intent.ReferenceCode,
		intent.ExpectedAmount, intent.Currency, intent.Status,
		intent.ExpiresAt, intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDuplicateIntent
	}
	return nil
}

// GetByReference retrieves an intent by its reference code
func (r *PaymentIntentRepository) GetByReference(ctx context.Context, referenceCode string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE reference_code = $1`

	err := r.db.GetContext(ctx, &intent, query, referenceCode)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
	}
	return &intent, nil
}

// GetActiveByOwner retrieves the pending or matched intent of an owner, if
// any. At most one can exist at a time.
func (r *PaymentIntentRepository) GetActiveByOwner(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE owner_type = $1 AND owner_id = $2
		  AND status IN ('pending', 'matched')
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &intent, query, ownerType, ownerID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active intent: %w", err)
	}
	return &intent, nil
}

// GetLatestByOwner retrieves the most recent intent of an owner regardless
// of status
func (r *PaymentIntentRepository) GetLatestByOwner(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &intent, query, ownerType, ownerID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest intent: %w", err)
	}
	return &intent, nil
}

// ListPending retrieves pending intents for the reconciliation sweep,
// oldest first
func (r *PaymentIntentRepository) ListPending(ctx context.Context, limit int) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &intents, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}
	return intents, nil
}

// ============================================================================
// MATCH TRANSITION (concurrency-critical path)
// ============================================================================

// ConfirmMatch atomically credits a bank transaction against the intent
// identified by referenceCode. The intent transition, the owner's flip to
// paid and nothing else happen in one transaction; on any error the intent
// stays in its pre-transition state.
//
// The conditional UPDATE on (status = 'pending' AND expected_amount = $n) is
// the sole serialization point: concurrent calls for the same intent race on
// it and exactly one observes a row change.
func (r *PaymentIntentRepository) ConfirmMatch(ctx context.Context, referenceCode, transactionID string, amount int64) (models.MatchResult, *models.PaymentIntent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var intent models.PaymentIntent
	query := `
		UPDATE payment_intents
		SET status = 'matched',
		    matched_transaction_id = $2,
		    matched_at = $3,
		    updated_at = $3
		WHERE reference_code = $1
		  AND status = 'pending'
		  AND expected_amount = $4
		RETURNING ` + paymentIntentColumns

	err = tx.GetContext(ctx, &intent, query, referenceCode, transactionID, now, amount)
	if err == sql.ErrNoRows {
		// Lost the conditional update; classify against current state.
		return r.classifyMissedMatch(ctx, referenceCode, transactionID, amount)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to transition intent: %w", err)
	}

	// Flip the owning order together with the intent. Stock was decremented
	// at reservation time, so nothing to adjust here.
	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'paid', updated_at = $3
		WHERE id = $1 AND kind = $2 AND status = 'awaiting_payment'
	`, intent.OwnerID, intent.OwnerType, now)
	if err != nil {
		return "", nil, fmt.Errorf("failed to mark owner paid: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Owner is not awaiting payment; rolling back leaves the intent
		// pending so the conflict surfaces on the next pass.
		return "", nil, fmt.Errorf("owner %s/%d not awaiting payment", intent.OwnerType, intent.OwnerID)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("failed to commit match: %w", err)
	}
	return models.MatchConfirmed, &intent, nil
}

// classifyMissedMatch explains a failed conditional match update: idempotent
// re-delivery, conflicting transaction, terminal intent or amount mismatch.
func (r *PaymentIntentRepository) classifyMissedMatch(ctx context.Context, referenceCode, transactionID string, amount int64) (models.MatchResult, *models.PaymentIntent, error) {
	intent, err := r.GetByReference(ctx, referenceCode)
	if err != nil {
		return "", nil, err
	}

	switch intent.Status {
	case models.IntentStatusMatched:
		if intent.MatchedTransactionID != nil && *intent.MatchedTransactionID == transactionID {
			return models.MatchAlreadyConfirmed, intent, nil
		}
		return models.MatchConflict, intent, nil
	case models.IntentStatusPending:
		// Still pending, so the update can only have missed on the amount
		if intent.ExpectedAmount != amount {
			return models.MatchRejected, intent, nil
		}
		return "", nil, fmt.Errorf("intent %s pending but match update affected no rows", referenceCode)
	default:
		// expired or cancelled
		return models.MatchRejected, intent, nil
	}
}

// ============================================================================
// EXPIRY & CANCELLATION (TTL / owner-initiated)
// ============================================================================

// ExpireDue transitions pending intents past their TTL to expired, releasing
// reserved stock and flipping the owner in the same transaction per intent.
// Returns the intents that were expired by this call.
func (r *PaymentIntentRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error) {
	var due []uuid.UUID
	err := r.db.SelectContext(ctx, &due, `
		SELECT id FROM payment_intents
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due intents: %w", err)
	}

	expired := make([]*models.PaymentIntent, 0, len(due))
	for _, id := range due {
		intent, err := r.expireOne(ctx, id, now)
		if err != nil {
			return expired, err
		}
		if intent != nil {
			expired = append(expired, intent)
		}
	}
	return expired, nil
}

// ExpireIntent expires a single pending intent past its TTL, releasing its
// stock in the same transaction. Returns (nil, nil) when another worker
// already moved it out of pending.
func (r *PaymentIntentRepository) ExpireIntent(ctx context.Context, intentID uuid.UUID, now time.Time) (*models.PaymentIntent, error) {
	return r.expireOne(ctx, intentID, now)
}

// expireOne expires a single intent. Returns (nil, nil) when another worker
// already moved it out of pending.
func (r *PaymentIntentRepository) expireOne(ctx context.Context, intentID uuid.UUID, now time.Time) (*models.PaymentIntent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var intent models.PaymentIntent
	err = tx.GetContext(ctx, &intent, `
		UPDATE payment_intents
		SET status = 'expired', expired_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+paymentIntentColumns, intentID, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to expire intent: %w", err)
	}

	if err := releaseOwnerStock(ctx, tx, intent.OwnerID, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'expired', updated_at = $3
		WHERE id = $1 AND kind = $2 AND status = 'awaiting_payment'
	`, intent.OwnerID, intent.OwnerType, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return &intent, nil
}

// CancelIntent transitions the owner's pending intent to cancelled and
// releases reserved stock. If a match committed first, the conditional
// update hits no rows and ErrNotCancellable is returned; the caller must
// not apply any side effect.
func (r *PaymentIntentRepository) CancelIntent(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.PaymentIntent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var intent models.PaymentIntent
	err = tx.GetContext(ctx, &intent, `
		UPDATE payment_intents
		SET status = 'cancelled', updated_at = $3
		WHERE owner_type = $1 AND owner_id = $2 AND status = 'pending'
		RETURNING `+paymentIntentColumns, ownerType, ownerID, now)
	if err == sql.ErrNoRows {
		return nil, ErrNotCancellable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel intent: %w", err)
	}

	if err := releaseOwnerStock(ctx, tx, intent.OwnerID, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'cancelled', updated_at = $3
		WHERE id = $1 AND kind = $2 AND status = 'awaiting_payment'
	`, intent.OwnerID, intent.OwnerType, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return &intent, nil
}

// releaseOwnerStock restores the stock reserved for an order's item lines
// inside the caller's transaction
func releaseOwnerStock(ctx context.Context, tx *sqlx.Tx, orderID int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products p
		SET stock_quantity = p.stock_quantity + oi.quantity,
		    updated_at = $2
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id
	`, orderID, now)
	if err != nil {
		return fmt.Errorf("failed to release reserved stock: %w", err)
	}
	return nil
}
