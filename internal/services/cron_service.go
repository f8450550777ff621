package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/vietcart/payment-backend/internal/config"
	"github.com/vietcart/payment-backend/internal/models"
)

// CronService manages the background reconciliation and expiry sweeps
type CronService struct {
	cron         *cron.Cron
	intents      *PaymentIntentService
	reconciler   *ReconciliationService
	cfg          config.ReconConfig
	logger       *logrus.Logger
	sweepTimeout time.Duration
}

// NewCronService creates a new CronService
func NewCronService(intents *PaymentIntentService, reconciler *ReconciliationService, cfg config.ReconConfig, logger *logrus.Logger) *CronService {
	// Seconds precision lets the reconciliation sweep run sub-minute
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:         c,
		intents:      intents,
		reconciler:   reconciler,
		cfg:          cfg,
		logger:       logger,
		sweepTimeout: 2 * time.Minute,
	}
}

// Start schedules and starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: reconcile pending intents against the bank feed.
	// Cron format: second minute hour day month weekday
	reconSpec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	_, err := s.cron.AddFunc(reconSpec, s.reconcileJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation sweep: %w", err)
	}
	s.logger.WithField("interval", s.cfg.PollInterval.String()).Info("Scheduled: reconciliation sweep")

	// Job 2: expire intents past their TTL every minute.
	// "0 * * * * *" = at second 0 of every minute
	_, err = s.cron.AddFunc("0 * * * * *", s.expireJob)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.logger.Info("Scheduled: intent expiry sweep (every minute)")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// reconcileJob runs one reconciliation pass over pending intents
func (s *CronService) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	start := time.Now()
	if err := s.reconciler.ReconcilePending(ctx, s.cfg.ExpireBatchLimit, models.PaymentSourceCron); err != nil {
		s.logger.WithError(err).Error("Reconciliation sweep failed")
		return
	}
	s.logger.WithField("duration", time.Since(start).String()).Debug("Reconciliation sweep completed")
}

// expireJob expires pending intents past their TTL
func (s *CronService) expireJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()

	expired, err := s.intents.ExpireDueIntents(ctx, s.cfg.ExpireBatchLimit, models.PaymentSourceCron)
	if err != nil {
		s.logger.WithError(err).Error("Expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("Expiry sweep completed")
	}
}
