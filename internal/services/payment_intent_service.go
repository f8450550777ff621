package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/config"
	"github.com/vietcart/payment-backend/internal/database"
	"github.com/vietcart/payment-backend/internal/models"
	"github.com/vietcart/payment-backend/pkg/refcode"
	"github.com/vietcart/payment-backend/pkg/vietqr"
)

// ErrOrderNotPayable is returned when the owner is not in a state that can
// accept a payment intent
var ErrOrderNotPayable = errors.New("order is not in a payable state")

// PaymentIntentService owns the intent lifecycle around the reconciliation
// engine: creation with stock reservation and QR rendering, cancellation,
// and TTL expiry.
type PaymentIntentService struct {
	intents intentLifecycleStore
	orders  orderStore
	stock   stockStore
	audits  auditStore
	bank    config.BankConfig
	ttl     time.Duration
	clock   Clock
	logger  *logrus.Logger
}

type intentLifecycleStore interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	CancelIntent(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.PaymentIntent, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]*models.PaymentIntent, error)
}

type orderStore interface {
	GetByID(ctx context.Context, kind models.OwnerType, id int64) (*models.Order, error)
	GetItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetStatus(ctx context.Context, kind models.OwnerType, id int64, from, to models.OrderStatus) error
}

type stockStore interface {
	Reserve(ctx context.Context, productID int64, qty int) error
	Release(ctx context.Context, productID int64, qty int) error
	Confirm(ctx context.Context, productID int64, qty int) error
}

type auditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// NewPaymentIntentService creates a new PaymentIntentService
func NewPaymentIntentService(
	intents intentLifecycleStore,
	orders orderStore,
	stock stockStore,
	audits auditStore,
	bank config.BankConfig,
	ttl time.Duration,
	clock Clock,
	logger *logrus.Logger,
) *PaymentIntentService {
	return &PaymentIntentService{
		intents: intents,
		orders:  orders,
		stock:   stock,
		audits:  audits,
		bank:    bank,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
	}
}

// CreateIntent moves an order into awaiting-payment: reserves stock for its
// item lines, creates the payment intent with a fresh reference code and
// renders the QR payload. Fails with database.ErrDuplicateIntent if the
// owner already has an active intent, and with database.ErrInsufficientStock
// when any line cannot be reserved (earlier reservations are rolled back).
func (s *PaymentIntentService) CreateIntent(ctx context.Context, ownerType models.OwnerType, ownerID int64) (*models.CreateIntentResponse, error) {
	order, err := s.orders.GetByID(ctx, ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDraft && order.Status != models.OrderStatusAwaitingPayment {
		return nil, ErrOrderNotPayable
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("order %s/%d has non-positive total %d", ownerType, ownerID, order.TotalAmount)
	}

	items, err := s.orders.GetItems(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// Reserve stock line by line; undo on any later failure so a rejected
	// intent never leaves stock held.
	reserved := make([]models.OrderItem, 0, len(items))
	rollback := func() {
		for _, item := range reserved {
			if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"order_id":   ownerID,
					"product_id": item.ProductID,
				}).Error("Failed to roll back stock reservation")
			}
		}
	}
	for _, item := range items {
		if err := s.stock.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, item)
	}

	now := s.clock.Now()
	intent := &models.PaymentIntent{
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		ReferenceCode:  refcode.Generate(strings.ToUpper(string(ownerType)), ownerID, now),
		ExpectedAmount: order.TotalAmount,
		Currency:       "VND",
		ExpiresAt:      now.Add(s.ttl),
	}

	if err := s.intents.CreateIntent(ctx, intent); err != nil {
		rollback()
		return nil, err
	}

	if order.Status == models.OrderStatusDraft {
		if err := s.orders.SetStatus(ctx, ownerType, ownerID, models.OrderStatusDraft, models.OrderStatusAwaitingPayment); err != nil {
			s.logger.WithError(err).WithField("order_id", ownerID).Error("Failed to move order to awaiting_payment")
			return nil, err
		}
	}

	qr, err := vietqr.Build(vietqr.BankAccount{
		AcquirerID:    s.bank.AcquirerID,
		BankCode:      s.bank.BankCode,
		AccountNumber: s.bank.AccountNumber,
		AccountName:   s.bank.AccountName,
	}, intent.ExpectedAmount, intent.ReferenceCode)
	if err != nil {
		return nil, fmt.Errorf("failed to build QR payload: %w", err)
	}

	audit := models.NewPaymentAudit(models.PaymentEventIntentCreated, models.PaymentSourceCustomer).
		SetIntent(intent.ID).
		SetReference(intent.ReferenceCode)
	audit.ExpectedAmount = &intent.ExpectedAmount
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Warn("Failed to audit intent creation")
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id":      intent.ID,
		"owner":          fmt.Sprintf("%s/%d", ownerType, ownerID),
		"reference_code": intent.ReferenceCode,
		"amount":         intent.ExpectedAmount,
		"expires_at":     intent.ExpiresAt,
	}).Info("Payment intent created")

	return &models.CreateIntentResponse{
		IntentID:      intent.ID,
		ReferenceCode: intent.ReferenceCode,
		Amount:        intent.ExpectedAmount,
		Currency:      intent.Currency,
		QRPayload:     qr.Content,
		QRImageURL:    qr.ImageURL,
		ExpiresAt:     intent.ExpiresAt,
		TTLSeconds:    int(s.ttl / time.Second),
	}, nil
}

// CancelIntent cancels the owner's pending intent and releases its stock.
// If a match already committed, the conditional update loses and
// database.ErrNotCancellable comes back; no side effect is applied.
func (s *PaymentIntentService) CancelIntent(ctx context.Context, ownerType models.OwnerType, ownerID int64) error {
	intent, err := s.intents.CancelIntent(ctx, ownerType, ownerID)
	if err != nil {
		return err
	}

	audit := models.NewPaymentAudit(models.PaymentEventIntentCancelled, models.PaymentSourceCustomer).
		SetIntent(intent.ID).
		SetReference(intent.ReferenceCode)
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Warn("Failed to audit intent cancellation")
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"owner":     fmt.Sprintf("%s/%d", ownerType, ownerID),
	}).Info("Payment intent cancelled")
	return nil
}

// ExpireDueIntents sweeps pending intents past their TTL, on behalf of the
// scheduler or an operator. Each expiry releases reserved stock and flips the
// owner in the same transaction; re-running the sweep is harmless because the
// transition is conditional.
func (s *PaymentIntentService) ExpireDueIntents(ctx context.Context, limit int, source models.PaymentEventSource) (int, error) {
	expired, err := s.intents.ExpireDue(ctx, s.clock.Now(), limit)
	for _, intent := range expired {
		audit := models.NewPaymentAudit(models.PaymentEventIntentExpired, source).
			SetIntent(intent.ID).
			SetReference(intent.ReferenceCode)
		if logErr := s.audits.Log(ctx, audit); logErr != nil {
			s.logger.WithError(logErr).Warn("Failed to audit intent expiry")
		}
		s.logger.WithFields(logrus.Fields{
			"intent_id":      intent.ID,
			"reference_code": intent.ReferenceCode,
		}).Info("Payment intent expired")
	}
	if err != nil {
		return len(expired), fmt.Errorf("expiry sweep incomplete: %w", err)
	}
	return len(expired), nil
}

// Ensure the concrete repositories satisfy the service contracts
var (
	_ intentLifecycleStore = (*database.PaymentIntentRepository)(nil)
	_ orderStore           = (*database.OrderRepository)(nil)
	_ stockStore           = (*database.ProductRepository)(nil)
	_ auditStore           = (*database.PaymentAuditRepository)(nil)
)
