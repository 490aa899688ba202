package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionlane/internal/models"
	"auctionlane/internal/store/memstore"
)

const (
	adminID   int64 = 1
	aliceID   int64 = 2
	bobID     int64 = 3
	blockedID int64 = 4
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu            sync.Mutex
	started       []string
	ended         []string
	endedWinners  []*models.Bid
	bidsAccepted  []float64
	prevLeaderIDs []int64
	editedChanges []string
}

func (r *recordingSink) AuctionStarted(_ context.Context, a *models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, a.AuctionID)
}

func (r *recordingSink) AuctionEnded(_ context.Context, a *models.Auction, winner *models.Bid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, a.AuctionID)
	r.endedWinners = append(r.endedWinners, winner)
}

func (r *recordingSink) BidAccepted(_ context.Context, _ *models.Auction, b *models.Bid, prev int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bidsAccepted = append(r.bidsAccepted, b.Amount)
	r.prevLeaderIDs = append(r.prevLeaderIDs, prev)
}

func (r *recordingSink) AuctionEdited(_ context.Context, _, change string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.editedChanges = append(r.editedChanges, change)
}

type fixture struct {
	eng   IAuctionEngine
	clock *fakeClock
	sink  *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memstore.New()
	clock := newFakeClock()
	sink := &recordingSink{}
	eng := NewWithClock(mem, mem, sink, []int64{adminID}, clock.Now)

	ctx := context.Background()
	for _, u := range []RegisterUserParams{
		{UserID: adminID, Username: "admin"},
		{UserID: aliceID, Username: "alice", FirstName: "Alice"},
		{UserID: bobID, Username: "bob"},
		{UserID: blockedID, Username: "mallory"},
	} {
		ok, err := eng.RegisterUser(ctx, u)
		require.NoError(t, err)
		require.True(t, ok)
	}
	f := &fixture{eng: eng, clock: clock, sink: sink}
	ok, err := eng.SetUserBlocked(ctx, adminID, blockedID, true)
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func (f *fixture) createActive(t *testing.T, title string, startPrice float64) string {
	t.Helper()
	id, err := f.eng.CreateAuction(context.Background(), CreateAuctionParams{
		CreatorID:     adminID,
		Title:         title,
		StartPrice:    startPrice,
		DurationHours: 1,
	})
	require.NoError(t, err)
	return id
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.eng.RegisterUser(ctx, RegisterUserParams{UserID: 99, Username: "alice"})
	require.NoError(t, err)
	require.False(t, ok, "duplicate username must be rejected")

	ok, err = f.eng.RegisterUser(ctx, RegisterUserParams{UserID: 100, Username: ""})
	require.NoError(t, err)
	require.False(t, ok, "empty username must be rejected")

	status, err := f.eng.UserStatus(ctx, adminID)
	require.NoError(t, err)
	require.True(t, status.Registered)
	require.True(t, status.User.IsAdmin, "configured admin id must register as admin")
}

func TestCreateAuction_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.CreateAuction(ctx, CreateAuctionParams{CreatorID: adminID, Title: " ", StartPrice: 10, DurationHours: 1})
	require.ErrorIs(t, err, ErrEmptyTitle)

	_, err = f.eng.CreateAuction(ctx, CreateAuctionParams{CreatorID: adminID, Title: "lot", StartPrice: 0, DurationHours: 1})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.eng.CreateAuction(ctx, CreateAuctionParams{CreatorID: adminID, Title: "lot", StartPrice: 10, DurationHours: 0})
	require.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.eng.CreateAuction(ctx, CreateAuctionParams{CreatorID: aliceID, Title: "lot", StartPrice: 10, DurationHours: 1})
	require.ErrorIs(t, err, ErrNotAdmin)
}

func TestCreateAuction_LaneQueuing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idA := f.createActive(t, "first", 100)
	a, err := f.eng.GetAuction(ctx, idA)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, a.Status)
	require.NotNil(t, a.EndTime)
	require.Equal(t, f.clock.Now().Add(time.Hour), *a.EndTime)

	// Lane is busy: the second auction queues, without an end time.
	idB := f.createActive(t, "second", 50)
	b, err := f.eng.GetAuction(ctx, idB)
	require.NoError(t, err)
	require.Equal(t, models.StatusScheduled, b.Status)
	require.Nil(t, b.EndTime)

	ok, err := f.eng.EndAuction(ctx, idA, adminID)
	require.NoError(t, err)
	require.True(t, ok)
	a, err = f.eng.GetAuction(ctx, idA)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, a.Status)

	f.clock.Advance(2 * time.Minute)
	ok, err = f.eng.ActivateScheduledAuction(ctx, idB)
	require.NoError(t, err)
	require.True(t, ok)
	b, err = f.eng.GetAuction(ctx, idB)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, b.Status)
	require.Equal(t, f.clock.Now().Add(time.Hour), *b.EndTime)

	require.Equal(t, []string{idA, idB}, f.sink.started)
	require.Equal(t, []string{idA}, f.sink.ended)
}

func TestSingleActiveInvariant_ConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.CreateAuction(ctx, CreateAuctionParams{
				CreatorID:     adminID,
				Title:         "lot",
				StartPrice:    100,
				DurationHours: 1,
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	current, err := f.eng.CurrentAuction(ctx)
	require.NoError(t, err)
	require.NotNil(t, current, "exactly one auction must hold the lane")

	next, err := f.eng.NextScheduledAuction(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.NotEqual(t, current.AuctionID, next.AuctionID)
}

func TestActivate_RefusesBusyLane(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createActive(t, "first", 100)
	idB := f.createActive(t, "second", 100)

	ok, err := f.eng.ActivateScheduledAuction(ctx, idB)
	require.NoError(t, err)
	require.False(t, ok, "activation must refuse while another auction is active")
}

func TestJoinAuction_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	for i := 0; i < 2; i++ {
		ok, err := f.eng.JoinAuction(ctx, id, aliceID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	a, err := f.eng.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int64{aliceID}, a.Participants)
}

func TestJoinAuction_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.createActive(t, "lot", 100)
	queued := f.createActive(t, "queued", 100)

	cases := []struct {
		name      string
		auctionID string
		userID    int64
	}{
		{"unknown_auction", "missing", aliceID},
		{"not_active", queued, aliceID},
		{"unknown_user", active, 999},
		{"blocked_user", active, blockedID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := f.eng.JoinAuction(ctx, tc.auctionID, tc.userID)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestPlaceBid_Acceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	for _, uid := range []int64{aliceID, bobID} {
		ok, err := f.eng.JoinAuction(ctx, id, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Equal to the current price is not strictly greater.
	ok, err := f.eng.PlaceBid(ctx, id, aliceID, 100)
	require.NoError(t, err)
	require.False(t, ok)
	a, _ := f.eng.GetAuction(ctx, id)
	require.Equal(t, float64(100), a.CurrentPrice)

	ok, err = f.eng.PlaceBid(ctx, id, aliceID, 150)
	require.NoError(t, err)
	require.True(t, ok)
	a, _ = f.eng.GetAuction(ctx, id)
	require.Equal(t, float64(150), a.CurrentPrice)
	require.Equal(t, aliceID, a.Leader().UserID)
	require.Equal(t, "alice", a.Leader().Username)

	// Matching the leader is still not strictly greater.
	ok, err = f.eng.PlaceBid(ctx, id, bobID, 150)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.eng.PlaceBid(ctx, id, bobID, 175)
	require.NoError(t, err)
	require.True(t, ok)
	a, _ = f.eng.GetAuction(ctx, id)
	require.Equal(t, bobID, a.Leader().UserID)

	// The overtaken leader rides along on the event.
	require.Equal(t, []int64{0, aliceID}, f.sink.prevLeaderIDs)
}

func TestPlaceBid_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)
	ok, err := f.eng.JoinAuction(ctx, id, aliceID)
	require.NoError(t, err)
	require.True(t, ok)

	// Not a participant.
	ok, err = f.eng.PlaceBid(ctx, id, bobID, 200)
	require.NoError(t, err)
	require.False(t, ok)

	// Blocked users cannot bid even if somehow joined earlier.
	ok, err = f.eng.PlaceBid(ctx, id, blockedID, 200)
	require.NoError(t, err)
	require.False(t, ok)

	// Expired auction accepts nothing.
	f.clock.Advance(2 * time.Hour)
	ok, err = f.eng.PlaceBid(ctx, id, aliceID, 200)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlaceBid_RaceKeepsMaxAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)
	for _, uid := range []int64{aliceID, bobID} {
		ok, err := f.eng.JoinAuction(ctx, id, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.eng.PlaceBid(ctx, id, aliceID, 110)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.eng.PlaceBid(ctx, id, bobID, 105)
		require.NoError(t, err)
	}()
	wg.Wait()

	a, err := f.eng.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, float64(110), a.CurrentPrice,
		"final price must equal the maximum accepted amount")
	// Whatever the interleaving, accepted amounts are strictly increasing.
	prev := a.StartPrice
	for _, b := range a.Bids {
		require.Greater(t, b.Amount, prev)
		prev = b.Amount
	}
}

func TestPriceMonotonicity_UnderContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)
	for _, uid := range []int64{aliceID, bobID} {
		ok, err := f.eng.JoinAuction(ctx, id, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := aliceID
			if i%2 == 0 {
				uid = bobID
			}
			_, err := f.eng.PlaceBid(ctx, id, uid, 100+float64(i%20)*5)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	a, err := f.eng.GetAuction(ctx, id)
	require.NoError(t, err)
	prev := a.StartPrice
	for _, b := range a.Bids {
		require.Greater(t, b.Amount, prev)
		prev = b.Amount
	}
	require.Equal(t, prev, a.CurrentPrice)
	if leader := a.Leader(); leader != nil {
		require.Equal(t, leader.Amount, a.CurrentPrice)
	}
}

func TestEditStartPrice_Guard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	ok, err := f.eng.EditAuctionStartPrice(ctx, id, 80)
	require.NoError(t, err)
	require.True(t, ok)
	a, _ := f.eng.GetAuction(ctx, id)
	require.Equal(t, float64(80), a.StartPrice)
	require.Equal(t, float64(80), a.CurrentPrice)

	ok, err = f.eng.JoinAuction(ctx, id, aliceID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.eng.PlaceBid(ctx, id, aliceID, 90)
	require.NoError(t, err)
	require.True(t, ok)

	// The floor must not move once bidding has started.
	ok, err = f.eng.EditAuctionStartPrice(ctx, id, 200)
	require.NoError(t, err)
	require.False(t, ok)
	a, _ = f.eng.GetAuction(ctx, id)
	require.Equal(t, float64(80), a.StartPrice)
	require.Equal(t, float64(90), a.CurrentPrice)
}

func TestEditTitleAndDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	ok, err := f.eng.EditAuctionTitle(ctx, id, "renamed")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.eng.EditAuctionDescription(ctx, id, "details")
	require.NoError(t, err)
	require.True(t, ok)

	a, _ := f.eng.GetAuction(ctx, id)
	require.Equal(t, "renamed", a.Title)
	require.Equal(t, "details", a.Description)
	require.Equal(t, []string{"title", "description"}, f.sink.editedChanges)

	ok, err = f.eng.EditAuctionTitle(ctx, "missing", "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEndAuction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	ok, err := f.eng.EndAuction(ctx, id, aliceID)
	require.NoError(t, err)
	require.False(t, ok, "non-admin cannot end an auction")

	ok, err = f.eng.EndAuction(ctx, id, adminID)
	require.NoError(t, err)
	require.True(t, ok)

	// Completed is terminal.
	ok, err = f.eng.EndAuction(ctx, id, adminID)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = f.eng.ExpireAuction(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEndAuction_PreservesFinalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)
	ok, err := f.eng.JoinAuction(ctx, id, aliceID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.eng.PlaceBid(ctx, id, aliceID, 130)
	require.NoError(t, err)
	require.True(t, ok)

	before, _ := f.eng.GetAuction(ctx, id)
	ok, err = f.eng.EndAuction(ctx, id, adminID)
	require.NoError(t, err)
	require.True(t, ok)

	after, _ := f.eng.GetAuction(ctx, id)
	require.Equal(t, models.StatusCompleted, after.Status)
	require.Equal(t, before.CurrentPrice, after.CurrentPrice)
	require.Equal(t, *before.EndTime, *after.EndTime)

	require.Len(t, f.sink.endedWinners, 1)
	require.Equal(t, aliceID, f.sink.endedWinners[0].UserID)
}

func TestExpireAuction_OnceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)

	f.clock.Advance(90 * time.Minute)
	ok, err := f.eng.ExpireAuction(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.eng.ExpireAuction(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "expiry must complete an auction exactly once")
	require.Equal(t, []string{id}, f.sink.ended)
}

func TestUserStatus_Participation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createActive(t, "lot", 100)
	for _, uid := range []int64{aliceID, bobID} {
		ok, err := f.eng.JoinAuction(ctx, id, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, bid := range []struct {
		uid    int64
		amount float64
	}{{aliceID, 110}, {bobID, 120}, {aliceID, 140}} {
		ok, err := f.eng.PlaceBid(ctx, id, bid.uid, bid.amount)
		require.NoError(t, err)
		require.True(t, ok)
	}

	status, err := f.eng.UserStatus(ctx, bobID)
	require.NoError(t, err)
	require.True(t, status.Registered)
	require.Len(t, status.Participation, 1)
	require.Equal(t, float64(120), status.Participation[0].UserBid.Amount)
	require.False(t, status.Participation[0].IsLeader)

	status, err = f.eng.UserStatus(ctx, aliceID)
	require.NoError(t, err)
	require.Equal(t, float64(140), status.Participation[0].UserBid.Amount)
	require.True(t, status.Participation[0].IsLeader)

	status, err = f.eng.UserStatus(ctx, 999)
	require.NoError(t, err)
	require.False(t, status.Registered)
}

func TestCompletedHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createActive(t, "first", 100)
	ok, err := f.eng.EndAuction(ctx, first, adminID)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(time.Minute)
	second := f.createActive(t, "second", 100)
	ok, err = f.eng.EndAuction(ctx, second, adminID)
	require.NoError(t, err)
	require.True(t, ok)

	done, err := f.eng.ListCompletedAuctions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, done, 2)
	require.Equal(t, second, done[0].AuctionID, "newest completed auction first")
}

// gateSink blocks inside AuctionStarted until released, to observe what the
// engine allows to proceed while a sink is slow.
type gateSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *gateSink) AuctionStarted(context.Context, *models.Auction) {
	s.entered <- struct{}{}
	<-s.release
}

func (s *gateSink) AuctionEnded(context.Context, *models.Auction, *models.Bid) {}

func (s *gateSink) BidAccepted(context.Context, *models.Auction, *models.Bid, int64) {}

func (s *gateSink) AuctionEdited(context.Context, string, string) {}

func TestCreateAuction_SlowSinkDoesNotHoldLane(t *testing.T) {
	sink := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	mem := memstore.New()
	eng := New(mem, mem, sink, []int64{adminID})
	ctx := context.Background()

	ok, err := eng.RegisterUser(ctx, RegisterUserParams{UserID: adminID, Username: "admin"})
	require.NoError(t, err)
	require.True(t, ok)

	firstDone := make(chan error, 1)
	go func() {
		_, err := eng.CreateAuction(ctx, CreateAuctionParams{
			CreatorID: adminID, Title: "first", StartPrice: 100, DurationHours: 1,
		})
		firstDone <- err
	}()
	<-sink.entered

	// The first creation is parked inside its notifier. The lane must
	// already be free for further transitions.
	secondDone := make(chan error, 1)
	go func() {
		_, err := eng.CreateAuction(ctx, CreateAuctionParams{
			CreatorID: adminID, Title: "second", StartPrice: 100, DurationHours: 1,
		})
		secondDone <- err
	}()
	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("creation blocked behind a slow notification sink")
	}

	close(sink.release)
	require.NoError(t, <-firstDone)

	// The second auction queued behind the first; only one took the lane.
	next, err := eng.NextScheduledAuction(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "second", next.Title)
}
