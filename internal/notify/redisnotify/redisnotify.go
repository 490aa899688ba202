package redisnotify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"auctionlane/internal/models"
	"auctionlane/internal/notify"
)

const channelPrefix = "auction:"

// Channel returns the pub/sub channel carrying a single auction's events.
func Channel(auctionID string) string { return channelPrefix + auctionID + ":events" }

// envelope is the frame published to Redis and forwarded verbatim to
// websocket clients.
type envelope struct {
	Event string `json:"event"`
	Body  any    `json:"body"`
}

type startedBody struct {
	Auction *models.Auction `json:"auction"`
}

type endedBody struct {
	Auction *models.Auction `json:"auction"`
	Winner  *models.Bid     `json:"winner,omitempty"`
}

type bidBody struct {
	AuctionID      string  `json:"auction_id"`
	UserID         int64   `json:"user_id"`
	Username       string  `json:"username"`
	Amount         float64 `json:"amount"`
	PreviousLeader int64   `json:"previous_leader,omitempty"`
	Participants   int     `json:"participants"`
	Bids           int     `json:"bids"`
}

type editedBody struct {
	AuctionID string `json:"auction_id"`
	Change    string `json:"change"`
}

// Publisher relays engine events onto per-auction Redis channels so that
// every service instance's websocket hub sees them.
type Publisher struct {
	rdc *redis.Client
}

var _ notify.Notifier = (*Publisher)(nil)

func NewPublisher(rdc *redis.Client) *Publisher { return &Publisher{rdc: rdc} }

func (p *Publisher) AuctionStarted(ctx context.Context, a *models.Auction) {
	p.publish(ctx, a.AuctionID, "auctions/started", startedBody{Auction: a})
}

func (p *Publisher) AuctionEnded(ctx context.Context, a *models.Auction, winner *models.Bid) {
	p.publish(ctx, a.AuctionID, "auctions/ended", endedBody{Auction: a, Winner: winner})
}

func (p *Publisher) BidAccepted(ctx context.Context, a *models.Auction, b *models.Bid, previousLeaderID int64) {
	p.publish(ctx, a.AuctionID, "auctions/bid", bidBody{
		AuctionID:      a.AuctionID,
		UserID:         b.UserID,
		Username:       b.Username,
		Amount:         b.Amount,
		PreviousLeader: previousLeaderID,
		Participants:   len(a.Participants),
		Bids:           len(a.Bids),
	})
}

func (p *Publisher) AuctionEdited(ctx context.Context, auctionID, change string) {
	p.publish(ctx, auctionID, "auctions/edited", editedBody{AuctionID: auctionID, Change: change})
}

func (p *Publisher) publish(ctx context.Context, auctionID, event string, body any) {
	payload, err := json.Marshal(envelope{Event: event, Body: body})
	if err != nil {
		zap.L().Error("notify.marshal", zap.String("event", event), zap.Error(err))
		return
	}

	// Detached timeout: event delivery must not inherit a caller that is
	// already done, and must not block the engine for long either.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.rdc.Publish(pubCtx, Channel(auctionID), payload).Err(); err != nil {
		zap.L().Warn("notify.publish",
			zap.String("event", event),
			zap.String("auction_id", auctionID),
			zap.Error(err))
	}
}
