package worker

import (
	"context"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

const sweepLockKey = "pending-order-sweeper"

type PendingOrderLister interface {
	ListPendingOrdersBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type OrderCanceller interface {
	CancelPendingOrder(ctx context.Context, orderID int64, reason string) (*models.Order, error)
}

// Locker is a distributed mutex so only one replica sweeps at a time.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	// ExtendLock reports false when the lock is no longer held by token.
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type SweeperConfig struct {
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
}

// PendingOrderSweeper cancels orders left pending past the timeout, which
// returns their stock and promotion usage.
type PendingOrderSweeper struct {
	orders    PendingOrderLister
	canceller OrderCanceller
	locker    Locker
	cfg       SweeperConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewPendingOrderSweeper creates a sweeper. locker may be nil for a single replica.
func NewPendingOrderSweeper(orders PendingOrderLister, canceller OrderCanceller, locker Locker, cfg SweeperConfig) *PendingOrderSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &PendingOrderSweeper{
		orders:    orders,
		canceller: canceller,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *PendingOrderSweeper) Run(ctx context.Context) {
	s.logger.Info("Starting pending order sweeper",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("timeout", s.cfg.Timeout))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping pending order sweeper")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Pending order sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce cancels expired pending orders batch by batch and returns how many
// were cancelled. Orders settled in the meantime are skipped. The sweep lock
// is extended before each further batch and the sweep stops if it was lost.
func (s *PendingOrderSweeper) SweepOnce(ctx context.Context) (int, error) {
	var token string
	if s.locker != nil {
		t, ok, err := s.locker.AcquireLock(ctx, sweepLockKey, s.cfg.Interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug("Another replica holds the sweep lock")
			return 0, nil
		}
		token = t
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), sweepLockKey, token); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	cutoff := s.now().Add(-s.cfg.Timeout)
	cancelled := 0
	for {
		n, full, err := s.sweepBatch(ctx, cutoff)
		cancelled += n
		if err != nil {
			return cancelled, err
		}
		// a batch with no progress would be listed again unchanged
		if !full || n == 0 {
			break
		}
		if s.locker != nil {
			held, err := s.locker.ExtendLock(ctx, sweepLockKey, token, s.cfg.Interval)
			if err != nil {
				return cancelled, err
			}
			if !held {
				s.logger.Warn("Sweep lock lost, stopping", zap.Int("cancelled", cancelled))
				break
			}
		}
	}

	if cancelled > 0 {
		s.logger.Info("Expired pending orders cancelled", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

// sweepBatch cancels up to BatchSize orders and reports whether the batch was full.
func (s *PendingOrderSweeper) sweepBatch(ctx context.Context, cutoff time.Time) (int, bool, error) {
	orders, err := s.orders.ListPendingOrdersBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, false, err
	}

	cancelled := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return cancelled, false, ctx.Err()
		}
		_, err := s.canceller.CancelPendingOrder(ctx, order.ID, service.CancelReasonTimeout)
		switch {
		case err == nil:
			cancelled++
		case service.KindOf(err) == service.KindConflict:
			s.logger.Debug("Order settled before sweep", zap.Int64("order_id", order.ID))
		default:
			s.logger.Error("Failed to cancel expired order", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	return cancelled, len(orders) == s.cfg.BatchSize, nil
}
