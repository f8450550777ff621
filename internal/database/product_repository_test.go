package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockProductRepo(t *testing.T) (*ProductRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewProductRepository(sqlx.NewDb(db, "sqlmock"), logger), mock
}

func TestReserve(t *testing.T) {
	repo, mock := newMockProductRepo(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products`).
			WithArgs(int64(7), 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Reserve(ctx, 7, 2)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient Stock", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products`).
			WithArgs(int64(7), 100, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Reserve(ctx, 7, 100)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Non-Positive Quantity", func(t *testing.T) {
		err := repo.Reserve(ctx, 7, 0)
		assert.Error(t, err)

		err = repo.Reserve(ctx, 7, -1)
		assert.Error(t, err)
	})
}

func TestRelease(t *testing.T) {
	repo, mock := newMockProductRepo(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products`).
			WithArgs(int64(7), 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Release(ctx, 7, 2)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Product", func(t *testing.T) {
		mock.ExpectExec(`UPDATE products`).
			WithArgs(int64(99), 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Release(ctx, 99, 2)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetStock(t *testing.T) {
	repo, mock := newMockProductRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT stock_quantity FROM products`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(12))

	stock, err := repo.GetStock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 12, stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
