package models

import "time"

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusScheduled AuctionStatus = "scheduled"
	StatusActive    AuctionStatus = "active"
	StatusCompleted AuctionStatus = "completed"
	// StatusCancelled is declared for forward compatibility; no engine
	// transition currently produces or consumes it.
	StatusCancelled AuctionStatus = "cancelled"
)

// User is a registered community member. UserID is the platform-stable
// identity (e.g. the chat platform's numeric id); Username is chosen once at
// registration and never changes.
type User struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	ChatHandle  string    `json:"chat_handle,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	IsBlocked   bool      `json:"is_blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bid is immutable once accepted. Username is a snapshot of the bidder's
// username at submission time.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Auction is a single lot. Bids are ordered by acceptance; since every
// accepted bid is strictly above the previous current price, the last bid is
// both the latest and the highest.
type Auction struct {
	AuctionID     string        `json:"auction_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	StartPrice    float64       `json:"start_price"`
	CurrentPrice  float64       `json:"current_price"`
	Status        AuctionStatus `json:"status"`
	CreatorID     int64         `json:"creator_id"`
	PhotoURL      string        `json:"photo_url,omitempty"`
	MediaType     string        `json:"media_type,omitempty"`
	CustomMessage string        `json:"custom_message,omitempty"`
	DurationHours int           `json:"duration_hours"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Participants  []int64       `json:"participants"`
	Bids          []Bid         `json:"bids"`
}

// Leader returns the bid currently holding the auction, or nil when no bid
// has been accepted yet.
func (a *Auction) Leader() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// IsActive reports whether the auction is accepting joins and bids at the
// given instant: status Active and end time not yet reached.
func (a *Auction) IsActive(now time.Time) bool {
	return a.Status == StatusActive && a.EndTime != nil && now.Before(*a.EndTime)
}

// HasParticipant reports whether the user has joined this auction.
func (a *Auction) HasParticipant(userID int64) bool {
	for _, id := range a.Participants {
		if id == userID {
			return true
		}
	}
	return false
}
