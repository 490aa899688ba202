package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"auctionlane/internal/services/engine"
)

const (
	DefaultInterval   = 60 * time.Second
	DefaultQueueDelay = time.Minute
)

// Scheduler drives the time-based lifecycle transitions: it expires the
// active auction once its end time passes and activates the earliest queued
// auction once the lane is free and the queuing delay has elapsed. Store
// errors are logged and retried on the next tick; a single bad iteration
// never stops the loop.
type Scheduler struct {
	eng        engine.IAuctionEngine
	interval   time.Duration
	queueDelay time.Duration
	now        func() time.Time
}

func New(eng engine.IAuctionEngine, interval, queueDelay time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if queueDelay <= 0 {
		queueDelay = DefaultQueueDelay
	}
	return &Scheduler{
		eng:        eng,
		interval:   interval,
		queueDelay: queueDelay,
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled. An in-flight tick always completes
// before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass: expiry check first, then activation.
func (s *Scheduler) Tick(ctx context.Context) {
	s.checkExpired(ctx)
	s.checkScheduled(ctx)
}

func (s *Scheduler) checkExpired(ctx context.Context) {
	current, err := s.eng.CurrentAuction(ctx)
	if err != nil {
		zap.L().Warn("scheduler.current_auction", zap.Error(err))
		return
	}
	if current == nil || current.EndTime == nil || s.now().Before(*current.EndTime) {
		return
	}
	ended, err := s.eng.ExpireAuction(ctx, current.AuctionID)
	if err != nil {
		zap.L().Warn("scheduler.expire", zap.String("auction_id", current.AuctionID), zap.Error(err))
		return
	}
	if ended {
		zap.L().Info("scheduler.auction_expired", zap.String("auction_id", current.AuctionID))
	}
}

func (s *Scheduler) checkScheduled(ctx context.Context) {
	current, err := s.eng.CurrentAuction(ctx)
	if err != nil {
		zap.L().Warn("scheduler.current_auction", zap.Error(err))
		return
	}
	if current != nil {
		return
	}
	next, err := s.eng.NextScheduledAuction(ctx)
	if err != nil {
		zap.L().Warn("scheduler.next_scheduled", zap.Error(err))
		return
	}
	if next == nil {
		return
	}
	// Let the previous auction's completion notifications settle before the
	// next one goes live.
	if s.now().Sub(next.CreatedAt) < s.queueDelay {
		return
	}
	started, err := s.eng.ActivateScheduledAuction(ctx, next.AuctionID)
	if err != nil {
		zap.L().Warn("scheduler.activate", zap.String("auction_id", next.AuctionID), zap.Error(err))
		return
	}
	if started {
		zap.L().Info("scheduler.auction_activated", zap.String("auction_id", next.AuctionID))
	}
}
