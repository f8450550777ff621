package bankfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, logger)
}

func TestFetchWindow(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Apikey test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
			assert.Equal(t, "2024-01-08", r.URL.Query().Get("to"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"error": 0,
				"message": "success",
				"transactions": [
					{"id": "tx-1", "description": "ORDER4220240101120000 transfer", "amount": 150000, "when": "2024-01-02T09:30:00Z"},
					{"id": "tx-2", "description": "tien an trua", "amount": 55000.00, "when": "2024-01-03 10:00:00"}
				]
			}`))
		})

		transactions, err := client.FetchWindow(context.Background(), from, to)
		require.NoError(t, err)
		require.Len(t, transactions, 2)

		assert.Equal(t, "tx-1", transactions[0].TransactionID)
		assert.Equal(t, int64(150000), transactions[0].Amount)
		assert.Equal(t, "ORDER4220240101120000 transfer", transactions[0].Description)
		assert.Equal(t, 2024, transactions[0].OccurredAt.Year())

		assert.Equal(t, int64(55000), transactions[1].Amount)
	})

	t.Run("Empty Window", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 0, "message": "success", "transactions": []}`))
		})

		transactions, err := client.FetchWindow(context.Background(), from, to)
		require.NoError(t, err)
		assert.Empty(t, transactions)
	})

	t.Run("HTTP 429 With Retry-After", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		transactions, err := client.FetchWindow(context.Background(), from, to)
		assert.Nil(t, transactions)

		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, 120*time.Second, rateErr.RetryAfter)
	})

	t.Run("HTTP 429 Without Retry-After Uses Floor", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.FetchWindow(context.Background(), from, to)

		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, DefaultRetryAfter, rateErr.RetryAfter)
	})

	t.Run("Retry-After Below Floor Is Raised", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.FetchWindow(context.Background(), from, to)

		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, DefaultRetryAfter, rateErr.RetryAfter)
	})

	t.Run("Rate Limit Result Code In Body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 429, "message": "too many requests", "transactions": null}`))
		})

		_, err := client.FetchWindow(context.Background(), from, to)

		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, DefaultRetryAfter, rateErr.RetryAfter)
	})

	t.Run("Server Error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.FetchWindow(context.Background(), from, to)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 0, "transactions": [`))
		})

		_, err := client.FetchWindow(context.Background(), from, to)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("Unknown Result Code", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 13, "message": "invalid credentials"}`))
		})

		_, err := client.FetchWindow(context.Background(), from, to)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Contains(t, err.Error(), "invalid credentials")
	})

	t.Run("Transaction Missing ID", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 0, "transactions": [{"id": "", "amount": 1000, "when": "2024-01-02"}]}`))
		})

		_, err := client.FetchWindow(context.Background(), from, to)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("Timeout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"error": 0, "transactions": []}`))
		})
		client.client.Timeout = 50 * time.Millisecond

		_, err := client.FetchWindow(context.Background(), from, to)
		assert.ErrorIs(t, err, ErrUnavailable)

		var rateErr *RateLimitError
		assert.False(t, errors.As(err, &rateErr))
	})
}
