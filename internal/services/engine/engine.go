package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auctionlane/internal/models"
	"auctionlane/internal/notify"
	"auctionlane/internal/store"
)

var (
	ErrInvalidPrice    = errors.New("start price must be positive")
	ErrInvalidDuration = errors.New("duration must be at least one hour")
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrNotAdmin        = errors.New("requester is not an admin")
)

// CreateAuctionParams carries everything needed to create a lot.
type CreateAuctionParams struct {
	CreatorID     int64
	Title         string
	StartPrice    float64
	DurationHours int
	Description   string
	PhotoURL      string
	MediaType     string
	CustomMessage string
}

// RegisterUserParams carries a new user's registration data.
type RegisterUserParams struct {
	UserID     int64
	Username   string
	ChatHandle string
	FirstName  string
	LastName   string
}

// Participation summarises a user's standing in one auction.
type Participation struct {
	Auction  *models.Auction `json:"auction"`
	UserBid  *models.Bid     `json:"user_bid,omitempty"`
	IsLeader bool            `json:"is_leader"`
}

// UserStatus is the participation summary returned by the status query.
type UserStatus struct {
	Registered    bool            `json:"registered"`
	User          *models.User    `json:"user,omitempty"`
	Participation []Participation `json:"participation,omitempty"`
}

// IAuctionEngine owns the auction state machine and the single-active-lane
// invariant. Business-rule rejections are reported as (false, nil); a non-nil
// error always means an infrastructure fault. Callers re-read state to
// explain a false result to the end user.
type IAuctionEngine interface {
	RegisterUser(ctx context.Context, p RegisterUserParams) (bool, error)
	SetUserBlocked(ctx context.Context, requesterID, userID int64, blocked bool) (bool, error)

	CreateAuction(ctx context.Context, p CreateAuctionParams) (string, error)
	JoinAuction(ctx context.Context, auctionID string, userID int64) (bool, error)
	PlaceBid(ctx context.Context, auctionID string, userID int64, amount float64) (bool, error)
	EndAuction(ctx context.Context, auctionID string, requesterID int64) (bool, error)
	// ExpireAuction is the system-triggered completion path used by the
	// scheduler; it skips the admin-requester check of EndAuction.
	ExpireAuction(ctx context.Context, auctionID string) (bool, error)
	// ActivateScheduledAuction is invoked by the scheduler once the lane is
	// free, never by a user-facing caller.
	ActivateScheduledAuction(ctx context.Context, auctionID string) (bool, error)

	EditAuctionTitle(ctx context.Context, auctionID, title string) (bool, error)
	EditAuctionDescription(ctx context.Context, auctionID, description string) (bool, error)
	EditAuctionStartPrice(ctx context.Context, auctionID string, price float64) (bool, error)

	GetAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	CurrentAuction(ctx context.Context) (*models.Auction, error)
	NextScheduledAuction(ctx context.Context) (*models.Auction, error)
	ListCompletedAuctions(ctx context.Context, limit int) ([]*models.Auction, error)
	UserStatus(ctx context.Context, userID int64) (*UserStatus, error)
}

type auctionEngine struct {
	users    store.UserStore
	auctions store.AuctionStore
	notifier notify.Notifier
	adminIDs map[int64]struct{}

	// laneMu scopes the "is any auction active" check together with the
	// status assignment that follows it, so two creations (or a creation
	// racing an activation) can never both take the lane.
	laneMu sync.Mutex

	now func() time.Time
}

var _ IAuctionEngine = (*auctionEngine)(nil)

func New(users store.UserStore, auctions store.AuctionStore, notifier notify.Notifier, adminIDs []int64) IAuctionEngine {
	return NewWithClock(users, auctions, notifier, adminIDs, time.Now)
}

// NewWithClock is New with an injectable clock, for tests that drive
// time-based transitions.
func NewWithClock(users store.UserStore, auctions store.AuctionStore, notifier notify.Notifier, adminIDs []int64, clock func() time.Time) IAuctionEngine {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	if notifier == nil {
		notifier = notify.LogSink{}
	}
	return &auctionEngine{
		users:    users,
		auctions: auctions,
		notifier: notifier,
		adminIDs: ids,
		now:      clock,
	}
}

func (e *auctionEngine) RegisterUser(ctx context.Context, p RegisterUserParams) (bool, error) {
	if p.Username == "" {
		return false, nil
	}
	_, isAdmin := e.adminIDs[p.UserID]
	user := &models.User{
		UserID:      p.UserID,
		Username:    p.Username,
		ChatHandle:  p.ChatHandle,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DisplayName: displayName(p),
		IsAdmin:     isAdmin,
		CreatedAt:   e.now(),
	}
	err := e.users.CreateUser(ctx, user)
	if errors.Is(err, store.ErrUsernameTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func displayName(p RegisterUserParams) string {
	full := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if full == "" {
		return p.Username
	}
	return fmt.Sprintf("%s (%s)", p.Username, full)
}

func (e *auctionEngine) SetUserBlocked(ctx context.Context, requesterID, userID int64, blocked bool) (bool, error) {
	ok, err := e.isAdmin(ctx, requesterID)
	if err != nil || !ok {
		return false, err
	}
	err = e.users.UpdateUserBlockedStatus(ctx, userID, blocked)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateAuction starts the auction immediately when the lane is free and
// queues it as scheduled otherwise. A busy lane is defined behavior, not an
// error.
func (e *auctionEngine) CreateAuction(ctx context.Context, p CreateAuctionParams) (string, error) {
	if strings.TrimSpace(p.Title) == "" {
		return "", ErrEmptyTitle
	}
	if p.StartPrice <= 0 {
		return "", ErrInvalidPrice
	}
	if p.DurationHours < 1 {
		return "", ErrInvalidDuration
	}
	ok, err := e.isAdmin(ctx, p.CreatorID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAdmin
	}

	auction, err := e.admitToLane(ctx, p)
	if err != nil {
		return "", err
	}
	zap.L().Info("auction_created",
		zap.String("auction_id", auction.AuctionID),
		zap.String("status", string(auction.Status)))

	if auction.Status == models.StatusActive {
		e.notifier.AuctionStarted(ctx, auction)
	}
	return auction.AuctionID, nil
}

// admitToLane decides active-vs-scheduled and persists the new auction while
// holding the lane. Notification happens in the caller, after the lock is
// released, so a slow sink cannot stall other lane transitions.
func (e *auctionEngine) admitToLane(ctx context.Context, p CreateAuctionParams) (*models.Auction, error) {
	e.laneMu.Lock()
	defer e.laneMu.Unlock()

	active, err := e.auctions.ListActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	auction := &models.Auction{
		AuctionID:     uuid.NewString(),
		Title:         p.Title,
		Description:   p.Description,
		StartPrice:    p.StartPrice,
		CurrentPrice:  p.StartPrice,
		Status:        models.StatusScheduled,
		CreatorID:     p.CreatorID,
		PhotoURL:      p.PhotoURL,
		MediaType:     p.MediaType,
		CustomMessage: p.CustomMessage,
		DurationHours: p.DurationHours,
		CreatedAt:     now,
	}
	if len(active) == 0 {
		endTime := now.Add(time.Duration(p.DurationHours) * time.Hour)
		auction.Status = models.StatusActive
		auction.EndTime = &endTime
	}

	if err := e.auctions.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}
	return auction, nil
}

func (e *auctionEngine) JoinAuction(ctx context.Context, auctionID string, userID int64) (bool, error) {
	auction, err := e.getAuction(ctx, auctionID)
	if err != nil || auction == nil {
		return false, err
	}
	if !auction.IsActive(e.now()) {
		return false, nil
	}
	user, err := e.getUser(ctx, userID)
	if err != nil || user == nil || user.IsBlocked {
		return false, err
	}
	if err := e.auctions.AddParticipant(ctx, auctionID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PlaceBid validates against the freshest persisted state and delegates the
// decisive price comparison to the store's atomic AddBid, so two racing bids
// can never leave the price below the highest accepted amount.
func (e *auctionEngine) PlaceBid(ctx context.Context, auctionID string, userID int64, amount float64) (bool, error) {
	auction, err := e.getAuction(ctx, auctionID)
	if err != nil || auction == nil {
		return false, err
	}
	if !auction.IsActive(e.now()) {
		return false, nil
	}
	user, err := e.getUser(ctx, userID)
	if err != nil || user == nil || user.IsBlocked {
		return false, err
	}
	if !auction.HasParticipant(userID) {
		return false, nil
	}
	if amount <= auction.CurrentPrice {
		return false, nil
	}

	previousLeader := auction.Leader()

	bid := &models.Bid{
		BidID:     uuid.NewString(),
		AuctionID: auctionID,
		UserID:    userID,
		Username:  user.Username,
		Amount:    amount,
		Timestamp: e.now(),
	}
	if err := e.auctions.AddBid(ctx, bid); err != nil {
		// Lost the race or checked a stale price; either way the stored
		// price already moved past this amount.
		if errors.Is(err, store.ErrBidBelowCurrent) {
			return false, nil
		}
		return false, err
	}

	var previousLeaderID int64
	if previousLeader != nil && previousLeader.UserID != userID {
		previousLeaderID = previousLeader.UserID
	}
	if updated, err := e.getAuction(ctx, auctionID); err == nil && updated != nil {
		e.notifier.BidAccepted(ctx, updated, bid, previousLeaderID)
	}
	return true, nil
}

func (e *auctionEngine) EndAuction(ctx context.Context, auctionID string, requesterID int64) (bool, error) {
	ok, err := e.isAdmin(ctx, requesterID)
	if err != nil || !ok {
		return false, err
	}
	return e.complete(ctx, auctionID)
}

func (e *auctionEngine) ExpireAuction(ctx context.Context, auctionID string) (bool, error) {
	return e.complete(ctx, auctionID)
}

// complete moves an active auction to completed, leaving end time, price and
// leader exactly as they stand.
func (e *auctionEngine) complete(ctx context.Context, auctionID string) (bool, error) {
	auction, err := e.completeInLane(ctx, auctionID)
	if err != nil || auction == nil {
		return false, err
	}
	zap.L().Info("auction_completed", zap.String("auction_id", auctionID))
	e.notifier.AuctionEnded(ctx, auction, auction.Leader())
	return true, nil
}

// completeInLane holds the lane for the status check and the transition;
// nil, nil means the auction is missing or not active.
func (e *auctionEngine) completeInLane(ctx context.Context, auctionID string) (*models.Auction, error) {
	e.laneMu.Lock()
	defer e.laneMu.Unlock()

	auction, err := e.getAuction(ctx, auctionID)
	if err != nil || auction == nil {
		return nil, err
	}
	if auction.Status != models.StatusActive {
		return nil, nil
	}
	if err := e.auctions.UpdateAuctionStatus(ctx, auctionID, models.StatusCompleted); err != nil {
		return nil, err
	}
	auction.Status = models.StatusCompleted
	return auction, nil
}

func (e *auctionEngine) ActivateScheduledAuction(ctx context.Context, auctionID string) (bool, error) {
	auction, err := e.activateInLane(ctx, auctionID)
	if err != nil || auction == nil {
		return false, err
	}
	zap.L().Info("auction_activated", zap.String("auction_id", auctionID))
	e.notifier.AuctionStarted(ctx, auction)
	return true, nil
}

// activateInLane holds the lane for the scheduled check, the busy-lane check
// and the transition; nil, nil means activation was refused.
func (e *auctionEngine) activateInLane(ctx context.Context, auctionID string) (*models.Auction, error) {
	e.laneMu.Lock()
	defer e.laneMu.Unlock()

	auction, err := e.getAuction(ctx, auctionID)
	if err != nil || auction == nil {
		return nil, err
	}
	if auction.Status != models.StatusScheduled {
		return nil, nil
	}
	active, err := e.auctions.ListActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, nil
	}

	endTime := e.now().Add(time.Duration(auction.DurationHours) * time.Hour)
	if err := e.auctions.UpdateAuctionStatusAndEndTime(ctx, auctionID, models.StatusActive, endTime); err != nil {
		return nil, err
	}
	auction.Status = models.StatusActive
	auction.EndTime = &endTime
	return auction, nil
}

func (e *auctionEngine) EditAuctionTitle(ctx context.Context, auctionID, title string) (bool, error) {
	if strings.TrimSpace(title) == "" {
		return false, nil
	}
	err := e.auctions.UpdateAuctionTitle(ctx, auctionID, title)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.notifier.AuctionEdited(ctx, auctionID, "title")
	return true, nil
}

func (e *auctionEngine) EditAuctionDescription(ctx context.Context, auctionID, description string) (bool, error) {
	err := e.auctions.UpdateAuctionDescription(ctx, auctionID, description)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.notifier.AuctionEdited(ctx, auctionID, "description")
	return true, nil
}

// EditAuctionStartPrice refuses to move the price floor once any bid has
// been accepted. The no-bids check belongs to the store's conditional write,
// so a bid landing concurrently keeps its floor.
func (e *auctionEngine) EditAuctionStartPrice(ctx context.Context, auctionID string, price float64) (bool, error) {
	if price <= 0 {
		return false, nil
	}
	if err := e.auctions.UpdateAuctionPrice(ctx, auctionID, price); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAuctionHasBids) {
			return false, nil
		}
		return false, err
	}
	e.notifier.AuctionEdited(ctx, auctionID, "start_price")
	return true, nil
}

func (e *auctionEngine) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	return e.getAuction(ctx, auctionID)
}

// CurrentAuction returns the single active auction, or nil when the lane is
// idle.
func (e *auctionEngine) CurrentAuction(ctx context.Context) (*models.Auction, error) {
	active, err := e.auctions.ListActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

// NextScheduledAuction returns the earliest-queued scheduled auction (FIFO
// by creation time), or nil when the queue is empty.
func (e *auctionEngine) NextScheduledAuction(ctx context.Context) (*models.Auction, error) {
	scheduled, err := e.auctions.ListScheduledAuctions(ctx)
	if err != nil {
		return nil, err
	}
	if len(scheduled) == 0 {
		return nil, nil
	}
	return scheduled[0], nil
}

func (e *auctionEngine) ListCompletedAuctions(ctx context.Context, limit int) ([]*models.Auction, error) {
	return e.auctions.ListCompletedAuctions(ctx, limit)
}

// UserStatus reports, per active auction the user joined, their highest bid
// and whether that bid currently leads.
func (e *auctionEngine) UserStatus(ctx context.Context, userID int64) (*UserStatus, error) {
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &UserStatus{}, nil
	}

	active, err := e.auctions.ListActiveAuctions(ctx)
	if err != nil {
		return nil, err
	}

	status := &UserStatus{Registered: true, User: user}
	for _, auction := range active {
		if !auction.HasParticipant(userID) {
			continue
		}
		var best *models.Bid
		for i := range auction.Bids {
			b := &auction.Bids[i]
			if b.UserID == userID && (best == nil || b.Amount > best.Amount) {
				best = b
			}
		}
		leader := auction.Leader()
		status.Participation = append(status.Participation, Participation{
			Auction:  auction,
			UserBid:  best,
			IsLeader: leader != nil && leader.UserID == userID,
		})
	}
	return status, nil
}

// getAuction maps a missing auction to (nil, nil) so callers can treat
// absence as a business rejection rather than a fault.
func (e *auctionEngine) getAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction, err := e.auctions.GetAuction(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return auction, err
}

func (e *auctionEngine) getUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := e.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (e *auctionEngine) isAdmin(ctx context.Context, userID int64) (bool, error) {
	user, err := e.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil || user.IsBlocked {
		return false, nil
	}
	if user.IsAdmin {
		return true, nil
	}
	_, ok := e.adminIDs[userID]
	return ok, nil
}
