package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"paygate/internal/config"
	"paygate/internal/payment"
	"paygate/internal/repository"
)

// Scheduler runs the background maintenance jobs: the pending-order
// recovery sweep and gateway log pruning.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	orders     repository.OrderStore
	gateway    payment.Gateway
	reconciler *payment.Reconciler
	gwLogs     *repository.GatewayLogRepository
	logger     *zap.Logger
}

// New creates a new cron scheduler.
func New(
	cfg *config.Config,
	orders repository.OrderStore,
	gateway payment.Gateway,
	reconciler *payment.Reconciler,
	gwLogs *repository.GatewayLogRepository,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg,
		orders:     orders,
		gateway:    gateway,
		reconciler: reconciler,
		gwLogs:     gwLogs,
		logger:     logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler",
		zap.String("sweep_spec", s.cfg.Sweep.Spec))

	if _, err := s.cron.AddFunc(s.cfg.Sweep.Spec, func() {
		s.logger.Debug("Running: pending order sweep")
		s.SweepPendingOrders()
	}); err != nil {
		s.logger.Error("Failed to schedule pending order sweep", zap.Error(err))
	}

	// Gateway log retention - daily
	if _, err := s.cron.AddFunc("@daily", func() {
		s.logger.Debug("Running: gateway log prune")
		s.pruneGatewayLogs()
	}); err != nil {
		s.logger.Error("Failed to schedule gateway log prune", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping cron scheduler")
	return s.cron.Stop()
}

// SweepPendingOrders re-verifies stale pending orders against the provider
// and completes the ones the provider reports as paid. This recovers
// orders whose webhook delivery was missed entirely. Orders the provider
// confirms as still unpaid past the expiry window are marked failed; a
// verify error leaves the order untouched for the next run.
func (s *Scheduler) SweepPendingOrders() {
	defer s.recoverFromPanic("pending order sweep")

	now := time.Now()
	orders, err := s.orders.FindStalePending(now.Add(-s.cfg.Sweep.PendingMaxAge))
	if err != nil {
		s.logger.Error("Stale pending lookup failed", zap.Error(err))
		return
	}

	recovered, expired := 0, 0
	for _, order := range orders {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		verified, err := s.gateway.VerifyPayment(ctx, order.ProviderChargeID)
		cancel()
		if err != nil {
			s.logger.Debug("Sweep verify failed",
				zap.String("purchase_key", order.PurchaseKey),
				zap.Error(err))
			continue
		}

		outcome, err := s.reconciler.ApplyVerified(order.PurchaseKey, verified)
		if err != nil {
			s.logger.Error("Sweep reconciliation failed",
				zap.String("purchase_key", order.PurchaseKey),
				zap.Error(err))
			continue
		}
		if outcome == payment.OutcomeCompleted {
			recovered++
			s.logger.Info("Recovered completed order missed by webhook",
				zap.String("purchase_key", order.PurchaseKey),
				zap.String("transaction_id", verified.TransactionID))
			continue
		}

		// Confirmed unpaid. Expire the order once the charge has been open
		// longer than the expiry window.
		if order.CreatedAt.Before(now.Add(-s.cfg.Sweep.PendingExpiry)) {
			if err := s.orders.MarkFailed(order.PurchaseKey, "Payment session expired without completion."); err != nil {
				s.logger.Error("Failed to expire pending order",
					zap.String("purchase_key", order.PurchaseKey),
					zap.Error(err))
				continue
			}
			expired++
		}
	}

	s.logger.Debug("Pending order sweep completed",
		zap.Int("checked", len(orders)),
		zap.Int("recovered", recovered),
		zap.Int("expired", expired))
}

func (s *Scheduler) pruneGatewayLogs() {
	defer s.recoverFromPanic("gateway log prune")

	cutoff := time.Now().Add(-s.cfg.Sweep.LogRetention)
	pruned, err := s.gwLogs.Prune(cutoff)
	if err != nil {
		s.logger.Error("Gateway log prune failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		s.logger.Info("Pruned gateway logs", zap.Int64("rows", pruned))
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked",
			zap.String("job", jobName),
			zap.Any("panic", r))
	}
}
