package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/config"
	"github.com/vietcart/payment-backend/internal/database"
	"github.com/vietcart/payment-backend/internal/models"
	"github.com/vietcart/payment-backend/pkg/bankfeed"
)

// Customer-facing messages. These are the only strings the check endpoint
// ever shows; bank feed failures and persistence errors stay in the logs.
const (
	msgPaid    = "Payment confirmed. Thank you!"
	msgPending = "Payment not seen yet. Please complete the transfer and check again shortly."
	msgWaiting = "Payment is being verified. Please wait a moment and check again."
	msgExpired = "The payment window has expired. Please create a new order."
)

// feedGateKey throttles the shared feed, not individual intents: one 429
// pauses polling for every caller.
const feedGateKey = "bankfeed"

type intentReconStore interface {
	GetLatestByOwner(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.PaymentIntent, error)
	ListPending(ctx context.Context, limit int) ([]*models.PaymentIntent, error)
	ConfirmMatch(ctx context.Context, referenceCode, transactionID string, amount int64) (models.MatchResult, *models.PaymentIntent, error)
	ExpireIntent(ctx context.Context, intentID uuid.UUID, now time.Time) (*models.PaymentIntent, error)
}

type feedSource interface {
	FetchWindow(ctx context.Context, from, to time.Time) ([]models.BankTransaction, error)
}

type itemSource interface {
	GetItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// ReconciliationService polls the bank transaction feed, matches transfers
// against pending intents and drives the paid transition. It backs both the
// customer-facing check endpoint and the background sweep; all paths funnel
// through the same conditional update, so a transfer is consumed once no
// matter who sees it first.
type ReconciliationService struct {
	intents intentReconStore
	orders  itemSource
	stock   stockStore
	audits  auditStore
	feed    feedSource
	gate    PollGate
	cfg     config.ReconConfig
	clock   Clock
	logger  *logrus.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	intents intentReconStore,
	orders itemSource,
	stock stockStore,
	audits auditStore,
	feed feedSource,
	gate PollGate,
	cfg config.ReconConfig,
	clock Clock,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		intents: intents,
		orders:  orders,
		stock:   stock,
		audits:  audits,
		feed:    feed,
		gate:    gate,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// CheckPayment is the customer-triggered reconciliation pass for an owner's
// latest intent. Matched intents answer from the stored state without
// touching the feed; pending intents go through one fetch-and-match attempt.
func (s *ReconciliationService) CheckPayment(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.CheckPaymentResponse, error) {
	intent, err := s.intents.GetLatestByOwner(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case models.IntentStatusMatched:
		return paidResponse(ownerType), nil
	case models.IntentStatusExpired, models.IntentStatusCancelled:
		return &models.CheckPaymentResponse{Status: models.CheckStatusExpired, Message: msgExpired}, nil
	}

	now := s.clock.Now()
	if intent.IsExpired(now) {
		// TTL passed but the sweep has not run yet; expire inline so the
		// customer never sees a stale pending answer.
		expired, err := s.intents.ExpireIntent(ctx, intent.ID, now)
		if err != nil {
			return nil, err
		}
		if expired == nil {
			// Lost the conditional transition: another worker moved the
			// intent out of pending first, possibly to matched. Answer
			// from whatever it became instead of assuming expiry.
			latest, err := s.intents.GetLatestByOwner(ctx, ownerType, ownerID)
			if err != nil {
				return nil, err
			}
			if latest.Status == models.IntentStatusMatched {
				return paidResponse(ownerType), nil
			}
			return &models.CheckPaymentResponse{Status: models.CheckStatusExpired, Message: msgExpired}, nil
		}
		s.auditExpiry(ctx, intent, models.PaymentSourceCustomer)
		return &models.CheckPaymentResponse{Status: models.CheckStatusExpired, Message: msgExpired}, nil
	}

	return s.reconcile(ctx, intent, models.PaymentSourceCustomer)
}

// ReconcilePending is the sweep over pending intents, run by the scheduler
// or triggered by an operator. Each intent gets the same fetch-and-match pass
// as a customer check; a rate-limited feed stops the whole sweep until the
// gate opens.
func (s *ReconciliationService) ReconcilePending(ctx context.Context, limit int, source models.PaymentEventSource) error {
	blocked, err := s.gate.Blocked(ctx, feedGateKey)
	if err != nil {
		s.logger.WithError(err).Warn("Poll gate check failed, proceeding with sweep")
	} else if blocked {
		return nil
	}

	pending, err := s.intents.ListPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list pending intents: %w", err)
	}

	for _, intent := range pending {
		if intent.IsExpired(s.clock.Now()) {
			continue // the expiry sweep owns this transition
		}
		resp, err := s.reconcile(ctx, intent, source)
		if err != nil {
			s.logger.WithError(err).WithField("intent_id", intent.ID).Error("Reconciliation pass failed")
			continue
		}
		if resp.Status == models.CheckStatusPending {
			// A rate limit closes the gate inside reconcile; stop fetching.
			if blocked, gateErr := s.gate.Blocked(ctx, feedGateKey); gateErr == nil && blocked {
				return nil
			}
		}
	}
	return nil
}

// reconcile runs one fetch-and-match attempt for a pending intent
func (s *ReconciliationService) reconcile(ctx context.Context, intent *models.PaymentIntent, source models.PaymentEventSource) (*models.CheckPaymentResponse, error) {
	blocked, err := s.gate.Blocked(ctx, feedGateKey)
	if err != nil {
		s.logger.WithError(err).Warn("Poll gate check failed, proceeding with fetch")
	} else if blocked {
		return &models.CheckPaymentResponse{Status: models.CheckStatusPending, Message: msgWaiting}, nil
	}

	now := s.clock.Now()
	from, to := s.window(intent, now)
	transactions, err := s.feed.FetchWindow(ctx, from, to)
	if err != nil {
		return s.handleFeedError(ctx, intent, source, err)
	}

	outcome := MatchIntent(intent, transactions)
	if outcome.Transaction == nil {
		return &models.CheckPaymentResponse{Status: models.CheckStatusPending, Message: msgPending}, nil
	}

	return s.applyMatch(ctx, intent, outcome, source)
}

// applyMatch pushes a matched transaction through the conditional paid
// transition and translates the result into a customer-facing answer
func (s *ReconciliationService) applyMatch(ctx context.Context, intent *models.PaymentIntent, outcome MatchOutcome, source models.PaymentEventSource) (*models.CheckPaymentResponse, error) {
	tx := outcome.Transaction
	result, updated, err := s.intents.ConfirmMatch(ctx, intent.ReferenceCode, tx.TransactionID, tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm match: %w", err)
	}

	s.auditDuplicates(ctx, intent, outcome, source)

	switch result {
	case models.MatchConfirmed:
		s.confirmStock(ctx, intent, source)
		audit := models.NewPaymentAudit(models.PaymentEventMatchConfirmed, source).
			SetIntent(intent.ID).
			SetReference(intent.ReferenceCode).
			SetBankTransaction(*tx)
		audit.SetAmounts(intent.ExpectedAmount, tx.Amount)
		s.log(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"intent_id":      intent.ID,
			"reference_code": intent.ReferenceCode,
			"transaction_id": tx.TransactionID,
			"amount":         tx.Amount,
		}).Info("Payment matched and confirmed")
		return paidResponse(intent.OwnerType), nil

	case models.MatchAlreadyConfirmed:
		// Same transfer seen again; the first pass already ran side effects
		return paidResponse(intent.OwnerType), nil

	case models.MatchConflict:
		// Intent is paid by a different transfer than the one we found.
		// Record for operator review; the customer still sees paid.
		audit := models.NewPaymentAudit(models.PaymentEventMatchConflict, source).
			SetIntent(intent.ID).
			SetReference(intent.ReferenceCode).
			SetBankTransaction(*tx)
		if updated != nil && updated.MatchedTransactionID != nil {
			audit.SetDetails(map[string]interface{}{
				"recorded_transaction_id": *updated.MatchedTransactionID,
			})
		}
		s.log(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"intent_id":      intent.ID,
			"transaction_id": tx.TransactionID,
		}).Error("Conflicting transaction for already-matched intent")
		return paidResponse(intent.OwnerType), nil

	default: // models.MatchRejected
		audit := models.NewPaymentAudit(models.PaymentEventMatchRejected, source).
			SetIntent(intent.ID).
			SetReference(intent.ReferenceCode).
			SetBankTransaction(*tx)
		audit.SetAmounts(intent.ExpectedAmount, tx.Amount)
		s.log(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"intent_id":       intent.ID,
			"expected_amount": intent.ExpectedAmount,
			"received_amount": tx.Amount,
		}).Warn("Match rejected by conditional transition")
		if updated != nil && updated.Status.IsTerminal() {
			return &models.CheckPaymentResponse{Status: models.CheckStatusExpired, Message: msgExpired}, nil
		}
		return &models.CheckPaymentResponse{Status: models.CheckStatusPending, Message: msgPending}, nil
	}
}

// handleFeedError maps feed failures to a pending answer. A rate limit
// closes the shared poll gate so no caller retries before the bank allows it.
func (s *ReconciliationService) handleFeedError(ctx context.Context, intent *models.PaymentIntent, source models.PaymentEventSource, err error) (*models.CheckPaymentResponse, error) {
	var rateErr *bankfeed.RateLimitError
	if errors.As(err, &rateErr) {
		wait := rateErr.RetryAfter
		if wait < s.cfg.RateLimitFloor {
			wait = s.cfg.RateLimitFloor
		}
		if gateErr := s.gate.Block(ctx, feedGateKey, wait); gateErr != nil {
			s.logger.WithError(gateErr).Warn("Failed to close poll gate after rate limit")
		}
		audit := models.NewPaymentAudit(models.PaymentEventFeedRateLimited, source).
			SetIntent(intent.ID).
			SetError(err.Error()).
			SetDetails(map[string]interface{}{"retry_after_seconds": int(wait / time.Second)})
		s.log(ctx, audit)
		s.logger.WithField("retry_after", wait).Warn("Transaction feed rate limited, polling paused")
		return &models.CheckPaymentResponse{Status: models.CheckStatusPending, Message: msgWaiting}, nil
	}

	// Unavailable or malformed: transient as far as the customer is
	// concerned, the intent stays pending until its TTL runs out.
	audit := models.NewPaymentAudit(models.PaymentEventFeedError, source).
		SetIntent(intent.ID).
		SetError(err.Error())
	s.log(ctx, audit)
	s.logger.WithError(err).WithField("intent_id", intent.ID).Error("Transaction feed fetch failed")
	return &models.CheckPaymentResponse{Status: models.CheckStatusPending, Message: msgWaiting}, nil
}

// window computes the feed query window. The default lookback covers recent
// transfers; when the intent predates it the window widens to the cap so a
// slow transfer is still found, never beyond it.
func (s *ReconciliationService) window(intent *models.PaymentIntent, now time.Time) (time.Time, time.Time) {
	from := now.AddDate(0, 0, -s.cfg.LookbackDays)
	if intent.CreatedAt.Before(from) {
		from = intent.CreatedAt
		oldest := now.AddDate(0, 0, -s.cfg.MaxLookbackDays)
		if from.Before(oldest) {
			from = oldest
		}
	}
	return from, now
}

// confirmStock finalizes the reservation for each item line after a paid
// transition. Reservation already decremented the counts; this is the
// bookkeeping hook, so a failure is logged and never unwinds the payment.
func (s *ReconciliationService) confirmStock(ctx context.Context, intent *models.PaymentIntent, source models.PaymentEventSource) {
	items, err := s.orders.GetItems(ctx, intent.OwnerID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", intent.OwnerID).Error("Failed to load items for stock confirmation")
		return
	}
	confirmed := 0
	for _, item := range items {
		if err := s.stock.Confirm(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"order_id":   intent.OwnerID,
				"product_id": item.ProductID,
			}).Error("Failed to confirm stock reservation")
			continue
		}
		confirmed++
	}

	audit := models.NewPaymentAudit(models.PaymentEventStockConfirmed, source).
		SetIntent(intent.ID).
		SetReference(intent.ReferenceCode).
		SetDetails(map[string]interface{}{
			"order_id":        intent.OwnerID,
			"lines_confirmed": confirmed,
			"lines_total":     len(items),
		})
	s.log(ctx, audit)
}

// auditDuplicates records every additional transaction that satisfied the
// same reference and amount; operators resolve these by hand
func (s *ReconciliationService) auditDuplicates(ctx context.Context, intent *models.PaymentIntent, outcome MatchOutcome, source models.PaymentEventSource) {
	for _, dup := range outcome.DuplicateCandidates {
		audit := models.NewPaymentAudit(models.PaymentEventMatchDuplicate, source).
			SetIntent(intent.ID).
			SetReference(intent.ReferenceCode).
			SetBankTransaction(dup)
		audit.SetAmounts(intent.ExpectedAmount, dup.Amount)
		audit.SetDetails(map[string]interface{}{
			"consumed_transaction_id": outcome.Transaction.TransactionID,
		})
		s.log(ctx, audit)
		s.logger.WithFields(logrus.Fields{
			"intent_id":      intent.ID,
			"transaction_id": dup.TransactionID,
		}).Warn("Duplicate candidate transaction recorded for review")
	}
}

func (s *ReconciliationService) auditExpiry(ctx context.Context, intent *models.PaymentIntent, source models.PaymentEventSource) {
	audit := models.NewPaymentAudit(models.PaymentEventIntentExpired, source).
		SetIntent(intent.ID).
		SetReference(intent.ReferenceCode)
	s.log(ctx, audit)
}

func (s *ReconciliationService) log(ctx context.Context, audit *models.PaymentAudit) {
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Warn("Failed to write payment audit")
	}
}

func paidResponse(ownerType models.OwnerType) *models.CheckPaymentResponse {
	return &models.CheckPaymentResponse{
		Status:       models.CheckStatusPaid,
		Message:      msgPaid,
		RedirectHint: fmt.Sprintf("/%ss/confirmation", ownerType),
	}
}

var (
	_ intentReconStore = (*database.PaymentIntentRepository)(nil)
	_ feedSource       = (*bankfeed.Client)(nil)
	_ itemSource       = (*database.OrderRepository)(nil)
)
