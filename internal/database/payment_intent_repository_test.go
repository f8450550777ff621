package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietcart/payment-backend/internal/models"
)

func newMockIntentRepo(t *testing.T) (*PaymentIntentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPaymentIntentRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var intentColumns = []string{
	"id", "owner_type", "owner_id", "reference_code", "expected_amount", "currency",
	"status", "matched_transaction_id", "matched_at", "expires_at", "expired_at",
	"created_at", "updated_at",
}

func intentRow(id uuid.UUID, status string, amount int64, matchedTx interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(intentColumns).AddRow(
		id, "order", int64(42), "ORDER_42_20240101120000", amount, "VND",
		status, matchedTx, nil, now.Add(30*time.Minute), nil, now, now,
	)
}

func TestCreateIntent(t *testing.T) {
	repo, mock := newMockIntentRepo(t)
	ctx := context.Background()

	intent := &models.PaymentIntent{
		OwnerType:      models.OwnerTypeOrder,
		OwnerID:        42,
		ReferenceCode:  "ORDER_42_20240101120000",
		ExpectedAmount: 150000,
		Currency:       "VND",
		ExpiresAt:      time.Now().Add(30 * time.Minute),
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO payment_intents`).
			WithArgs(sqlmock.AnyArg(), intent.OwnerType, intent.OwnerID, intent.ReferenceCode,
				intent.ExpectedAmount, intent.Currency, models.IntentStatusPending,
				intent.ExpiresAt, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateIntent(ctx, intent)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, intent.ID)
		assert.Equal(t, models.IntentStatusPending, intent.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Active Intent", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO payment_intents`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.CreateIntent(ctx, intent)
		assert.ErrorIs(t, err, ErrDuplicateIntent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO payment_intents`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.CreateIntent(ctx, intent)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create payment intent")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetLatestByOwner(t *testing.T) {
	repo, mock := newMockIntentRepo(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`FROM payment_intents`).
			WithArgs(models.OwnerTypeOrder, int64(42)).
			WillReturnRows(intentRow(id, "pending", 150000, nil))

		intent, err := repo.GetLatestByOwner(ctx, models.OwnerTypeOrder, 42)
		require.NoError(t, err)
		assert.Equal(t, id, intent.ID)
		assert.Equal(t, models.IntentStatusPending, intent.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`FROM payment_intents`).
			WithArgs(models.OwnerTypeOrder, int64(99)).
			WillReturnRows(sqlmock.NewRows(intentColumns))

		_, err := repo.GetLatestByOwner(ctx, models.OwnerTypeOrder, 99)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConfirmMatch(t *testing.T) {
	repo, mock := newMockIntentRepo(t)
	ctx := context.Background()
	ref := "ORDER_42_20240101120000"

	t.Run("First Match Wins", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-1", sqlmock.AnyArg(), int64(150000)).
			WillReturnRows(intentRow(id, "matched", 150000, "tx-1"))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(int64(42), models.OwnerTypeOrder, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, intent, err := repo.ConfirmMatch(ctx, ref, "tx-1", 150000)
		require.NoError(t, err)
		assert.Equal(t, models.MatchConfirmed, result)
		assert.Equal(t, id, intent.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Same Transaction Again Is Idempotent", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-1", sqlmock.AnyArg(), int64(150000)).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectQuery(`FROM payment_intents WHERE reference_code`).
			WithArgs(ref).
			WillReturnRows(intentRow(id, "matched", 150000, "tx-1"))
		mock.ExpectRollback()

		result, intent, err := repo.ConfirmMatch(ctx, ref, "tx-1", 150000)
		require.NoError(t, err)
		assert.Equal(t, models.MatchAlreadyConfirmed, result)
		require.NotNil(t, intent.MatchedTransactionID)
		assert.Equal(t, "tx-1", *intent.MatchedTransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Different Transaction Conflicts", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-2", sqlmock.AnyArg(), int64(150000)).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectQuery(`FROM payment_intents WHERE reference_code`).
			WithArgs(ref).
			WillReturnRows(intentRow(uuid.New(), "matched", 150000, "tx-1"))
		mock.ExpectRollback()

		result, _, err := repo.ConfirmMatch(ctx, ref, "tx-2", 150000)
		require.NoError(t, err)
		assert.Equal(t, models.MatchConflict, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Amount Mismatch Rejects", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-1", sqlmock.AnyArg(), int64(150001)).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectQuery(`FROM payment_intents WHERE reference_code`).
			WithArgs(ref).
			WillReturnRows(intentRow(uuid.New(), "pending", 150000, nil))
		mock.ExpectRollback()

		result, _, err := repo.ConfirmMatch(ctx, ref, "tx-1", 150001)
		require.NoError(t, err)
		assert.Equal(t, models.MatchRejected, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Expired Intent Rejects", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-1", sqlmock.AnyArg(), int64(150000)).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectQuery(`FROM payment_intents WHERE reference_code`).
			WithArgs(ref).
			WillReturnRows(intentRow(uuid.New(), "expired", 150000, nil))
		mock.ExpectRollback()

		result, _, err := repo.ConfirmMatch(ctx, ref, "tx-1", 150000)
		require.NoError(t, err)
		assert.Equal(t, models.MatchRejected, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Owner Not Awaiting Payment Rolls Back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(ref, "tx-1", sqlmock.AnyArg(), int64(150000)).
			WillReturnRows(intentRow(uuid.New(), "matched", 150000, "tx-1"))
		mock.ExpectExec(`UPDATE orders`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, _, err := repo.ConfirmMatch(ctx, ref, "tx-1", 150000)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not awaiting payment")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExpireDue(t *testing.T) {
	repo, mock := newMockIntentRepo(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("Expires Due Intent With Stock Release", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT id FROM payment_intents`).
			WithArgs(now, 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(id, now).
			WillReturnRows(intentRow(id, "expired", 150000, nil))
		mock.ExpectExec(`UPDATE products p`).
			WithArgs(int64(42), now).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(int64(42), models.OwnerTypeOrder, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		expired, err := repo.ExpireDue(ctx, now, 100)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, id, expired[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing Due", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id FROM payment_intents`).
			WithArgs(now, 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		expired, err := repo.ExpireDue(ctx, now, 100)
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Transitioned By Another Worker", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT id FROM payment_intents`).
			WithArgs(now, 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(id, now).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectRollback()

		expired, err := repo.ExpireDue(ctx, now, 100)
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCancelIntent(t *testing.T) {
	repo, mock := newMockIntentRepo(t)
	ctx := context.Background()

	t.Run("Cancels Pending Intent", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(models.OwnerTypeOrder, int64(42), sqlmock.AnyArg()).
			WillReturnRows(intentRow(id, "cancelled", 150000, nil))
		mock.ExpectExec(`UPDATE products p`).
			WithArgs(int64(42), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE orders`).
			WithArgs(int64(42), models.OwnerTypeOrder, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		intent, err := repo.CancelIntent(ctx, models.OwnerTypeOrder, 42)
		require.NoError(t, err)
		assert.Equal(t, id, intent.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Matched Intent Is Not Cancellable", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payment_intents`).
			WithArgs(models.OwnerTypeOrder, int64(42), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(intentColumns))
		mock.ExpectRollback()

		_, err := repo.CancelIntent(ctx, models.OwnerTypeOrder, 42)
		assert.ErrorIs(t, err, ErrNotCancellable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
