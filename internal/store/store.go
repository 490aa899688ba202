package store

import (
	"context"
	"errors"
	"time"

	"auctionlane/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned by CreateUser when the username is
	// already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrBidBelowCurrent is returned by AddBid when the bid amount is not
	// strictly above the stored current price, or the auction is no longer
	// active. The conditional check and the price update are a single
	// atomic step in every implementation.
	ErrBidBelowCurrent = errors.New("bid below current high bid")
	// ErrAuctionHasBids is returned by UpdateAuctionPrice once any bid has
	// been accepted; the price floor is frozen from the first bid on.
	ErrAuctionHasBids = errors.New("auction already has bids")
)

// UserStore persists registered users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserBlockedStatus(ctx context.Context, userID int64, blocked bool) error
	ListAllUsers(ctx context.Context) ([]*models.User, error)
}

// AuctionStore persists auctions, their participants and their bids.
//
// GetAuction and the three list methods all return fully-hydrated auctions,
// participants and bids included, so callers can evaluate participation and
// leadership on any result without re-fetching.
//
// AddBid must insert the bid and raise the auction's stored current price as
// one atomic conditional step: it succeeds only while the auction is active
// and the amount is strictly above the stored price, and returns
// ErrBidBelowCurrent otherwise. A plain read-compare-write here loses bids
// under contention.
//
// UpdateAuctionPrice is conditional the same way: it must refuse with
// ErrAuctionHasBids once any bid row exists, in the same atomic step as the
// write, so a racing bid cannot have its floor moved from under it.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *models.Auction) error
	GetAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID string, status models.AuctionStatus) error
	UpdateAuctionStatusAndEndTime(ctx context.Context, auctionID string, status models.AuctionStatus, endTime time.Time) error
	UpdateAuctionTitle(ctx context.Context, auctionID, title string) error
	UpdateAuctionDescription(ctx context.Context, auctionID, description string) error
	UpdateAuctionPrice(ctx context.Context, auctionID string, price float64) error
	AddParticipant(ctx context.Context, auctionID string, userID int64) error
	AddBid(ctx context.Context, bid *models.Bid) error
	ListActiveAuctions(ctx context.Context) ([]*models.Auction, error)
	ListScheduledAuctions(ctx context.Context) ([]*models.Auction, error)
	ListCompletedAuctions(ctx context.Context, limit int) ([]*models.Auction, error)
}
