package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auctionlane/internal/models"
	"auctionlane/internal/store"
)

// Store is a concurrency-safe in-memory implementation of both store
// interfaces. It is the reference implementation used by the test suite and
// by STORE_DRIVER=memory deployments.
type Store struct {
	mu        sync.RWMutex
	users     map[int64]*models.User
	usernames map[string]int64
	auctions  map[string]*models.Auction
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.AuctionStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:     make(map[int64]*models.User),
		usernames: make(map[string]int64),
		auctions:  make(map[string]*models.Auction),
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[user.Username]; taken {
		return fmt.Errorf("create user %q: %w", user.Username, store.ErrUsernameTaken)
	}
	if _, exists := s.users[user.UserID]; exists {
		return fmt.Errorf("create user %d: already registered", user.UserID)
	}
	cp := *user
	s.users[user.UserID] = &cp
	s.usernames[user.Username] = user.UserID
	return nil
}

func (s *Store) GetUser(_ context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("get user %d: %w", userID, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, fmt.Errorf("get user %q: %w", username, store.ErrNotFound)
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateUserBlockedStatus(_ context.Context, userID int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("update user %d: %w", userID, store.ErrNotFound)
	}
	u.IsBlocked = blocked
	return nil
}

func (s *Store) ListAllUsers(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateAuction(_ context.Context, auction *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.AuctionID]; exists {
		return fmt.Errorf("create auction %s: already exists", auction.AuctionID)
	}
	s.auctions[auction.AuctionID] = copyAuction(auction)
	return nil
}

func (s *Store) GetAuction(_ context.Context, auctionID string) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, store.ErrNotFound)
	}
	return copyAuction(a), nil
}

func (s *Store) UpdateAuctionStatus(_ context.Context, auctionID string, status models.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	a.Status = status
	return nil
}

func (s *Store) UpdateAuctionStatusAndEndTime(_ context.Context, auctionID string, status models.AuctionStatus, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	a.Status = status
	et := endTime
	a.EndTime = &et
	return nil
}

func (s *Store) UpdateAuctionTitle(_ context.Context, auctionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	a.Title = title
	return nil
}

func (s *Store) UpdateAuctionDescription(_ context.Context, auctionID, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	a.Description = description
	return nil
}

// UpdateAuctionPrice sets both the start price and the current price. The
// bid check and the write share the lock, so a bid accepted concurrently
// can never have its floor moved afterwards.
func (s *Store) UpdateAuctionPrice(_ context.Context, auctionID string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	if len(a.Bids) > 0 {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrAuctionHasBids)
	}
	a.StartPrice = price
	a.CurrentPrice = price
	return nil
}

// AddParticipant is idempotent: re-joining is a no-op.
func (s *Store) AddParticipant(_ context.Context, auctionID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("add participant to %s: %w", auctionID, store.ErrNotFound)
	}
	if a.HasParticipant(userID) {
		return nil
	}
	a.Participants = append(a.Participants, userID)
	return nil
}

// AddBid performs the check-and-append under the write lock so that of two
// racing bids only the strictly higher one can land after the other.
func (s *Store) AddBid(_ context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[bid.AuctionID]
	if !ok {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, store.ErrNotFound)
	}
	if a.Status != models.StatusActive || bid.Amount <= a.CurrentPrice {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, store.ErrBidBelowCurrent)
	}
	a.Bids = append(a.Bids, *bid)
	a.CurrentPrice = bid.Amount
	return nil
}

func (s *Store) ListActiveAuctions(_ context.Context) ([]*models.Auction, error) {
	return s.listByStatus(models.StatusActive, false, 0), nil
}

func (s *Store) ListScheduledAuctions(_ context.Context) ([]*models.Auction, error) {
	return s.listByStatus(models.StatusScheduled, false, 0), nil
}

func (s *Store) ListCompletedAuctions(_ context.Context, limit int) ([]*models.Auction, error) {
	return s.listByStatus(models.StatusCompleted, true, limit), nil
}

func (s *Store) listByStatus(status models.AuctionStatus, newestFirst bool, limit int) []*models.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Auction, 0)
	for _, a := range s.auctions {
		if a.Status == status {
			out = append(out, copyAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyAuction(a *models.Auction) *models.Auction {
	cp := *a
	cp.Participants = append([]int64(nil), a.Participants...)
	cp.Bids = append([]models.Bid(nil), a.Bids...)
	if a.EndTime != nil {
		et := *a.EndTime
		cp.EndTime = &et
	}
	return &cp
}
