package notify

import (
	"context"

	"go.uber.org/zap"

	"auctionlane/internal/models"
)

// Notifier receives lifecycle and bid events from the engine. Delivery is
// best-effort: implementations log failures and never surface them, so a
// sink outage cannot roll back an engine state change.
type Notifier interface {
	AuctionStarted(ctx context.Context, auction *models.Auction)
	// AuctionEnded carries the final leading bid, nil when no bid was placed.
	AuctionEnded(ctx context.Context, auction *models.Auction, winner *models.Bid)
	// BidAccepted carries the overtaken leader's user id, 0 when the bid is
	// the auction's first or the same user raised their own bid.
	BidAccepted(ctx context.Context, auction *models.Auction, bid *models.Bid, previousLeaderID int64)
	AuctionEdited(ctx context.Context, auctionID, change string)
}

// LogSink writes every event to the process log. It is the fallback sink for
// deployments without Redis and keeps event flow observable in tests.
type LogSink struct{}

var _ Notifier = LogSink{}

func (LogSink) AuctionStarted(_ context.Context, a *models.Auction) {
	zap.L().Info("auction_started",
		zap.String("auction_id", a.AuctionID),
		zap.String("title", a.Title),
		zap.Float64("start_price", a.StartPrice))
}

func (LogSink) AuctionEnded(_ context.Context, a *models.Auction, winner *models.Bid) {
	fields := []zap.Field{
		zap.String("auction_id", a.AuctionID),
		zap.String("title", a.Title),
		zap.Int("participants", len(a.Participants)),
		zap.Int("bids", len(a.Bids)),
	}
	if winner != nil {
		fields = append(fields,
			zap.Int64("winner_id", winner.UserID),
			zap.Float64("final_price", winner.Amount))
	}
	zap.L().Info("auction_ended", fields...)
}

func (LogSink) BidAccepted(_ context.Context, a *models.Auction, b *models.Bid, previousLeaderID int64) {
	zap.L().Info("bid_accepted",
		zap.String("auction_id", a.AuctionID),
		zap.Int64("user_id", b.UserID),
		zap.Float64("amount", b.Amount),
		zap.Int64("previous_leader", previousLeaderID))
}

func (LogSink) AuctionEdited(_ context.Context, auctionID, change string) {
	zap.L().Info("auction_edited",
		zap.String("auction_id", auctionID),
		zap.String("change", change))
}

// Multi fans a single event out to several sinks in order.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) AuctionStarted(ctx context.Context, a *models.Auction) {
	for _, n := range m {
		n.AuctionStarted(ctx, a)
	}
}

func (m Multi) AuctionEnded(ctx context.Context, a *models.Auction, winner *models.Bid) {
	for _, n := range m {
		n.AuctionEnded(ctx, a, winner)
	}
}

func (m Multi) BidAccepted(ctx context.Context, a *models.Auction, b *models.Bid, previousLeaderID int64) {
	for _, n := range m {
		n.BidAccepted(ctx, a, b, previousLeaderID)
	}
}

func (m Multi) AuctionEdited(ctx context.Context, auctionID, change string) {
	for _, n := range m {
		n.AuctionEdited(ctx, auctionID, change)
	}
}
