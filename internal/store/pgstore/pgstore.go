package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auctionlane/internal/models"
	"auctionlane/internal/store"
)

// Store is the durable Postgres implementation of the persistence contract.
// It holds no state beyond the connection pool.
type Store struct {
	db *sql.DB
}

var (
	_ store.UserStore    = (*Store)(nil)
	_ store.AuctionStore = (*Store)(nil)
)

func New(db *sql.DB) *Store { return &Store{db: db} }

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		user_id      BIGINT PRIMARY KEY,
		username     TEXT UNIQUE NOT NULL,
		chat_handle  TEXT NOT NULL DEFAULT '',
		first_name   TEXT NOT NULL DEFAULT '',
		last_name    TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL,
		is_admin     BOOLEAN NOT NULL DEFAULT FALSE,
		is_blocked   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id     TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		start_price    DOUBLE PRECISION NOT NULL,
		current_price  DOUBLE PRECISION NOT NULL,
		status         TEXT NOT NULL,
		creator_id     BIGINT NOT NULL,
		photo_url      TEXT NOT NULL DEFAULT '',
		media_type     TEXT NOT NULL DEFAULT '',
		custom_message TEXT NOT NULL DEFAULT '',
		duration_hours INT NOT NULL,
		end_time       TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS bids (
		bid_id     TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions (auction_id),
		user_id    BIGINT NOT NULL,
		username   TEXT NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		placed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS auction_participants (
		auction_id TEXT NOT NULL REFERENCES auctions (auction_id),
		user_id    BIGINT NOT NULL,
		joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (auction_id, user_id)
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateUser maps a username conflict to ErrUsernameTaken. A duplicate
// user_id is not swallowed: it surfaces as the driver's constraint error,
// like the in-memory store's duplicate-registration error.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	const q = `
	INSERT INTO users (user_id, username, chat_handle, first_name, last_name,
	                   display_name, is_admin, is_blocked, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (username) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		user.UserID, user.Username, user.ChatHandle, user.FirstName, user.LastName,
		user.DisplayName, user.IsAdmin, user.IsBlocked, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %d: %w", user.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("create user %q: %w", user.Username, store.ErrUsernameTaken)
	}
	return nil
}

const userColumns = `user_id, username, chat_handle, first_name, last_name,
                     display_name, is_admin, is_blocked, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.UserID, &u.Username, &u.ChatHandle, &u.FirstName, &u.LastName,
		&u.DisplayName, &u.IsAdmin, &u.IsBlocked, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user %d: %w", userID, store.ErrNotFound)
	}
	return u, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user %q: %w", username, store.ErrNotFound)
	}
	return u, err
}

func (s *Store) UpdateUserBlockedStatus(ctx context.Context, userID int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = $2 WHERE user_id = $1`, userID, blocked)
	if err != nil {
		return fmt.Errorf("update user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update user %d: %w", userID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAllUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.UserID, &u.Username, &u.ChatHandle, &u.FirstName,
			&u.LastName, &u.DisplayName, &u.IsAdmin, &u.IsBlocked, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	const q = `
	INSERT INTO auctions (auction_id, title, description, start_price, current_price,
	                      status, creator_id, photo_url, media_type, custom_message,
	                      duration_hours, end_time, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := s.db.ExecContext(ctx, q,
		a.AuctionID, a.Title, a.Description, a.StartPrice, a.CurrentPrice,
		string(a.Status), a.CreatorID, a.PhotoURL, a.MediaType, a.CustomMessage,
		a.DurationHours, a.EndTime, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, err)
	}
	return nil
}

const auctionColumns = `auction_id, title, description, start_price, current_price,
                        status, creator_id, photo_url, media_type, custom_message,
                        duration_hours, end_time, created_at`

func scanAuction(sc interface{ Scan(...any) error }) (*models.Auction, error) {
	a := &models.Auction{}
	var status string
	var endTime sql.NullTime
	err := sc.Scan(&a.AuctionID, &a.Title, &a.Description, &a.StartPrice, &a.CurrentPrice,
		&status, &a.CreatorID, &a.PhotoURL, &a.MediaType, &a.CustomMessage,
		&a.DurationHours, &endTime, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.AuctionStatus(status)
	if endTime.Valid {
		et := endTime.Time
		a.EndTime = &et
	}
	return a, nil
}

// GetAuction loads the auction row together with its participants and its
// bids in acceptance order.
func (s *Store) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRelations(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// loadRelations attaches the participant ids and the bids in acceptance
// order to an already-scanned auction row.
func (s *Store) loadRelations(ctx context.Context, a *models.Auction) error {
	prows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM auction_participants WHERE auction_id = $1 ORDER BY joined_at`, a.AuctionID)
	if err != nil {
		return err
	}
	defer prows.Close()
	for prows.Next() {
		var id int64
		if err := prows.Scan(&id); err != nil {
			return err
		}
		a.Participants = append(a.Participants, id)
	}
	if err := prows.Err(); err != nil {
		return err
	}

	brows, err := s.db.QueryContext(ctx,
		`SELECT bid_id, auction_id, user_id, username, amount, placed_at
		   FROM bids WHERE auction_id = $1 ORDER BY placed_at`, a.AuctionID)
	if err != nil {
		return err
	}
	defer brows.Close()
	for brows.Next() {
		var b models.Bid
		if err := brows.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Username,
			&b.Amount, &b.Timestamp); err != nil {
			return err
		}
		a.Bids = append(a.Bids, b)
	}
	return brows.Err()
}

func (s *Store) UpdateAuctionStatus(ctx context.Context, auctionID string, status models.AuctionStatus) error {
	return s.execOnAuction(ctx, auctionID,
		`UPDATE auctions SET status = $2 WHERE auction_id = $1`, string(status))
}

func (s *Store) UpdateAuctionStatusAndEndTime(ctx context.Context, auctionID string, status models.AuctionStatus, endTime time.Time) error {
	return s.execOnAuction(ctx, auctionID,
		`UPDATE auctions SET status = $2, end_time = $3 WHERE auction_id = $1`,
		string(status), endTime)
}

func (s *Store) UpdateAuctionTitle(ctx context.Context, auctionID, title string) error {
	return s.execOnAuction(ctx, auctionID,
		`UPDATE auctions SET title = $2 WHERE auction_id = $1`, title)
}

func (s *Store) UpdateAuctionDescription(ctx context.Context, auctionID, description string) error {
	return s.execOnAuction(ctx, auctionID,
		`UPDATE auctions SET description = $2 WHERE auction_id = $1`, description)
}

// UpdateAuctionPrice guards the write with the no-bids condition in the same
// statement, so a bid committed in between cannot have its floor overwritten.
func (s *Store) UpdateAuctionPrice(ctx context.Context, auctionID string, price float64) error {
	const q = `
	UPDATE auctions SET start_price = $2, current_price = $2
	 WHERE auction_id = $1
	   AND NOT EXISTS (SELECT 1 FROM bids WHERE auction_id = $1)`
	res, err := s.db.ExecContext(ctx, q, auctionID, price)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrAuctionHasBids)
	}
	return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
}

func (s *Store) AddParticipant(ctx context.Context, auctionID string, userID int64) error {
	const q = `
	INSERT INTO auction_participants (auction_id, user_id)
	     VALUES ($1, $2)
	ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, auctionID, userID); err != nil {
		return fmt.Errorf("add participant to %s: %w", auctionID, err)
	}
	return nil
}

// AddBid raises the current price with a conditional UPDATE and inserts the
// bid row in the same transaction. When the condition does not hold (stale
// price, auction no longer active) zero rows are affected and the bid is
// rejected without a write.
func (s *Store) AddBid(ctx context.Context, bid *models.Bid) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, err)
	}
	defer tx.Rollback()

	const cond = `
	UPDATE auctions SET current_price = $2
	 WHERE auction_id = $1 AND status = 'active' AND current_price < $2`
	res, err := tx.ExecContext(ctx, cond, bid.AuctionID, bid.Amount)
	if err != nil {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, store.ErrBidBelowCurrent)
	}

	const ins = `
	INSERT INTO bids (bid_id, auction_id, user_id, username, amount, placed_at)
	     VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := tx.ExecContext(ctx, ins,
		bid.BidID, bid.AuctionID, bid.UserID, bid.Username, bid.Amount, bid.Timestamp); err != nil {
		return fmt.Errorf("add bid to %s: %w", bid.AuctionID, err)
	}
	return tx.Commit()
}

func (s *Store) ListActiveAuctions(ctx context.Context) ([]*models.Auction, error) {
	return s.listByStatus(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = 'active' ORDER BY created_at`)
}

func (s *Store) ListScheduledAuctions(ctx context.Context) ([]*models.Auction, error) {
	return s.listByStatus(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = 'scheduled' ORDER BY created_at`)
}

func (s *Store) ListCompletedAuctions(ctx context.Context, limit int) ([]*models.Auction, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listByStatus(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = 'completed'
		  ORDER BY created_at DESC LIMIT `+fmt.Sprint(limit))
}

// listByStatus returns fully-hydrated auctions, same as GetAuction, so
// callers can inspect participants and bids on list results.
func (s *Store) listByStatus(ctx context.Context, q string) ([]*models.Auction, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}

	var out []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range out {
		if err := s.loadRelations(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) execOnAuction(ctx context.Context, auctionID, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, append([]any{auctionID}, args...)...)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update auction %s: %w", auctionID, store.ErrNotFound)
	}
	return nil
}
