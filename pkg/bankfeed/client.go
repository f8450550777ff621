// Package bankfeed is a thin client for the bank aggregator's transaction
// history API. It normalizes the provider's wire format into
// models.BankTransaction and classifies failures so that the reconciliation
// worker can tell "back off" from "broken".
package bankfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/models"
)

const (
	// DefaultTimeout bounds a single feed request. This is separate from
	// the rate-limit backoff between requests.
	DefaultTimeout = 10 * time.Second

	// DefaultRetryAfter is the backoff floor applied when the feed
	// rate-limits without saying for how long
	DefaultRetryAfter = 60 * time.Second

	dateLayout = "2006-01-02"
)

var (
	// ErrUnavailable covers timeouts, connection failures and 5xx replies.
	// Retried on the next poll cycle, never surfaced as a hard failure.
	ErrUnavailable = errors.New("transaction feed unavailable")

	// ErrMalformedResponse covers replies the client cannot interpret
	ErrMalformedResponse = errors.New("malformed transaction feed response")
)

// RateLimitError is returned when the feed asks us to slow down. Callers
// must not retry before RetryAfter has elapsed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transaction feed rate limited, retry after %s", e.RetryAfter)
}

// Config holds configuration for the feed client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches bank transactions from the aggregator
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

// NewClient creates a new feed client
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// feedResponse is the provider's wire format
type feedResponse struct {
	Error        int         `json:"error"`
	Message      string      `json:"message"`
	Transactions []feedEntry `json:"transactions"`
}

// feedEntry is one transaction record on the wire
type feedEntry struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	When        string      `json:"when"`
}

// Provider-side result codes
const (
	feedCodeOK          = 0
	feedCodeRateLimited = 429
)

// FetchWindow returns the bank transactions posted between from and to,
// normalized and in provider order. Error classification:
// *RateLimitError when throttled, ErrUnavailable on timeout/5xx,
// ErrMalformedResponse when the reply cannot be parsed.
func (c *Client) FetchWindow(ctx context.Context, from, to time.Time) ([]models.BankTransaction, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(dateLayout))
	q.Set("to", to.UTC().Format(dateLayout))
	requestURL := fmt.Sprintf("%s/transactions?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Authorization", "Apikey "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Transaction feed request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	case resp.StatusCode >= 500:
		c.logger.WithField("status_code", resp.StatusCode).Warn("Transaction feed server error")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode)
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.WithError(err).Error("Failed to parse transaction feed response")
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch parsed.Error {
	case feedCodeOK:
	case feedCodeRateLimited:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	default:
		return nil, fmt.Errorf("%w: result code %d (%s)", ErrMalformedResponse, parsed.Error, parsed.Message)
	}

	transactions := make([]models.BankTransaction, 0, len(parsed.Transactions))
	for _, entry := range parsed.Transactions {
		tx, err := normalize(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		transactions = append(transactions, tx)
	}

	c.logger.WithFields(logrus.Fields{
		"from":  from.Format(dateLayout),
		"to":    to.Format(dateLayout),
		"count": len(transactions),
	}).Debug("Transaction feed window fetched")

	return transactions, nil
}

// normalize converts a wire entry into a BankTransaction. The feed reports
// decimal amounts; VND has no minor unit so they truncate toward zero.
func normalize(entry feedEntry) (models.BankTransaction, error) {
	if entry.ID == "" {
		return models.BankTransaction{}, fmt.Errorf("transaction without id")
	}

	amount, err := entry.Amount.Float64()
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("transaction %s: bad amount %q", entry.ID, entry.Amount)
	}

	occurredAt, err := parseWhen(entry.When)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("transaction %s: %v", entry.ID, err)
	}

	return models.BankTransaction{
		TransactionID: entry.ID,
		Description:   entry.Description,
		Amount:        int64(amount),
		OccurredAt:    occurredAt,
	}, nil
}

// parseWhen accepts the timestamp formats the provider has been seen to use
func parseWhen(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

// retryAfter reads the Retry-After header, applying the floor when it is
// missing or shorter than the floor
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			if d > DefaultRetryAfter {
				return d
			}
		}
	}
	return DefaultRetryAfter
}
