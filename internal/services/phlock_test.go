package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type phlockFixture struct {
	db       *gorm.DB
	phlock   *Phlock
	follows  repositories.FollowRepository
	shares   repositories.ShareRepository
	pusher   *fakePusher
	notifier *Notifier
}

func newPhlockFixture(t *testing.T, at time.Time) *phlockFixture {
	t.Helper()
	db := newTestDB(t)
	pusher := &fakePusher{}
	tasks := NewSyncRunner(testLogger())
	notifier := NewNotifier(
		repositories.NewPostgresNotificationRepository(db),
		repositories.NewPostgresUserRepository(db),
		pusher,
		tasks,
		time.UTC,
	)
	notifier.now = fixedClock(at)

	followRepo := repositories.NewPostgresFollowRepository(db)
	shareRepo := repositories.NewPostgresShareRepository(db)
	phlock := NewPhlock(
		followRepo,
		repositories.NewPostgresFollowRequestRepository(db),
		repositories.NewPostgresUserRepository(db),
		shareRepo,
		notifier,
		testLogger(),
		time.UTC,
	)
	phlock.now = fixedClock(at)

	return &phlockFixture{
		db:       db,
		phlock:   phlock,
		follows:  followRepo,
		shares:   shareRepo,
		pusher:   pusher,
		notifier: notifier,
	}
}

func (f *phlockFixture) setNow(at time.Time) {
	f.phlock.now = fixedClock(at)
	f.notifier.now = fixedClock(at)
}

// assertPhlockInvariant checks at most five members with distinct positions
// in 1..5.
func assertPhlockInvariant(t *testing.T, f *phlockFixture, userID uint) {
	t.Helper()
	slots, err := f.phlock.GetPhlock(userID)
	require.NoError(t, err)
	require.LessOrEqual(t, len(slots), models.PhlockSize)

	seen := make(map[int]bool)
	for _, slot := range slots {
		require.NotNil(t, slot.PhlockPosition)
		pos := *slot.PhlockPosition
		require.GreaterOrEqual(t, pos, 1)
		require.LessOrEqual(t, pos, models.PhlockSize)
		require.False(t, seen[pos], "duplicate phlock position %d", pos)
		seen[pos] = true
	}
}

func TestFollowRules(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	assert.ErrorIs(t, f.phlock.Follow(ctx, alice.ID, alice.ID), ErrCannotFollowSelf)

	require.NoError(t, f.phlock.Follow(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, f.phlock.Follow(ctx, alice.ID, bob.ID), ErrAlreadyFollowing)

	rows := notificationsFor(t, f.db, bob.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationNewFollower, rows[0].Type)
}

func TestAddToPhlockRequiresFollowAndValidPosition(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	assert.ErrorIs(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 0), ErrInvalidPhlockPosition)
	assert.ErrorIs(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 6), ErrInvalidPhlockPosition)
	assert.ErrorIs(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 1), ErrNotFollowing)

	require.NoError(t, f.phlock.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 1))
	assertPhlockInvariant(t, f, alice.ID)
}

func TestAddToPhlockEvictsOccupant(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")

	members := make([]*models.User, 0, 6)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		u := createTestUser(t, f.db, fmt.Sprintf("member%d", i))
		members = append(members, u)
		require.NoError(t, f.phlock.Follow(ctx, alice.ID, u.ID))
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, members[i].ID, i+1))
	}
	assertPhlockInvariant(t, f, alice.ID)

	// The sixth member takes position 3; its occupant is evicted, not shifted.
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, members[5].ID, 3))
	assertPhlockInvariant(t, f, alice.ID)

	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 5)
	byPosition := make(map[int]uint)
	for _, slot := range slots {
		byPosition[*slot.PhlockPosition] = slot.FollowingID
	}
	assert.Equal(t, members[5].ID, byPosition[3])

	evicted, err := f.follows.GetFollow(alice.ID, members[2].ID)
	require.NoError(t, err)
	assert.False(t, evicted.IsInPhlock)
	assert.Nil(t, evicted.PhlockPosition)
}

func TestRemoveFromPhlock(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, f.phlock.RemoveFromPhlock(ctx, alice.ID, bob.ID), ErrNotInPhlock)

	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 2))
	require.NoError(t, f.phlock.RemoveFromPhlock(ctx, alice.ID, bob.ID))

	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestReorderPhlock(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")
	carol := createTestUser(t, f.db, "carol")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, carol.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 1))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, carol.ID, 2))

	require.NoError(t, f.phlock.ReorderPhlock(ctx, alice.ID, []uint{carol.ID, bob.ID}))
	assertPhlockInvariant(t, f, alice.ID)

	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, carol.ID, slots[0].FollowingID)
	assert.Equal(t, bob.ID, slots[1].FollowingID)

	outsider := createTestUser(t, f.db, "outsider")
	assert.ErrorIs(t, f.phlock.ReorderPhlock(ctx, alice.ID, []uint{outsider.ID}), ErrNotInPhlock)
}

func TestSwapAppliesImmediatelyWhenIncomingHasNotPicked(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	out := createTestUser(t, f.db, "out")
	in := createTestUser(t, f.db, "in")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, out.ID))
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, in.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, out.ID, 4))

	scheduled, err := f.phlock.SwapPhlockMember(ctx, alice.ID, out.ID, in.ID)
	require.NoError(t, err)
	assert.False(t, scheduled)

	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, in.ID, slots[0].FollowingID)
	assert.Equal(t, 4, *slots[0].PhlockPosition)
}

func TestSwapDefersToMidnightWhenIncomingPicked(t *testing.T) {
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newPhlockFixture(t, day)
	alice := createTestUser(t, f.db, "alice")
	out := createTestUser(t, f.db, "out")
	in := createTestUser(t, f.db, "in")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, out.ID))
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, in.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, out.ID, 2))

	// The incoming member already picked today.
	seedDailySong(t, f.db, in.ID, day.Format(models.DateLayout))

	scheduled, err := f.phlock.SwapPhlockMember(ctx, alice.ID, out.ID, in.ID)
	require.NoError(t, err)
	assert.True(t, scheduled)

	// Nothing moved yet.
	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, out.ID, slots[0].FollowingID)

	// Midnight passes; the scheduler applies the swap.
	f.setNow(day.AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(time.Minute))
	require.NoError(t, f.phlock.ProcessDueSwaps(ctx))

	slots, err = f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, in.ID, slots[0].FollowingID)
	assert.Equal(t, 2, *slots[0].PhlockPosition)

	// The swap never re-applies.
	due, err := f.follows.GetDueSwaps(f.phlock.now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueSwapKeepsSlotWhenIncomingUnfollowed(t *testing.T) {
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newPhlockFixture(t, day)
	alice := createTestUser(t, f.db, "alice")
	out := createTestUser(t, f.db, "out")
	in := createTestUser(t, f.db, "in")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, out.ID))
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, in.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, out.ID, 2))

	seedDailySong(t, f.db, in.ID, day.Format(models.DateLayout))
	scheduled, err := f.phlock.SwapPhlockMember(ctx, alice.ID, out.ID, in.ID)
	require.NoError(t, err)
	require.True(t, scheduled)

	// Alice unfollows the incoming member before midnight. The due swap
	// cannot seat them, and the failed attempt must not vacate the slot.
	require.NoError(t, f.phlock.Unfollow(ctx, alice.ID, in.ID))

	f.setNow(day.AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(time.Minute))
	require.NoError(t, f.phlock.ProcessDueSwaps(ctx))

	slots, err := f.phlock.GetPhlock(alice.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, out.ID, slots[0].FollowingID)
	require.NotNil(t, slots[0].PhlockPosition)
	assert.Equal(t, 2, *slots[0].PhlockPosition)

	// The swap is retired rather than retried forever.
	due, err := f.follows.GetDueSwaps(f.phlock.now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSwapRequiresMembershipAndFollow(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	out := createTestUser(t, f.db, "out")
	in := createTestUser(t, f.db, "in")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, out.ID))

	_, err := f.phlock.SwapPhlockMember(ctx, alice.ID, out.ID, in.ID)
	assert.ErrorIs(t, err, ErrNotInPhlock)

	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, out.ID, 1))
	_, err = f.phlock.SwapPhlockMember(ctx, alice.ID, out.ID, in.ID)
	assert.ErrorIs(t, err, ErrNotFollowing)
}

func TestFollowRequestLifecycle(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	require.NoError(t, f.phlock.RequestFollow(ctx, alice.ID, bob.ID))
	// A duplicate ask while pending is a no-op, not an error.
	require.NoError(t, f.phlock.RequestFollow(ctx, alice.ID, bob.ID))

	pending, err := f.phlock.PendingFollowRequests(bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.phlock.AcceptFollowRequest(ctx, bob.ID, pending[0].ID))

	following, err := f.follows.IsFollowing(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, following)

	pending, err = f.phlock.PendingFollowRequests(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRejectFollowRequestChecksTarget(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")
	mallory := createTestUser(t, f.db, "mallory")

	ctx := context.Background()
	require.NoError(t, f.phlock.RequestFollow(ctx, alice.ID, bob.ID))
	pending, err := f.phlock.PendingFollowRequests(bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Only the target may answer.
	assert.Error(t, f.phlock.RejectFollowRequest(ctx, mallory.ID, pending[0].ID))

	require.NoError(t, f.phlock.RejectFollowRequest(ctx, bob.ID, pending[0].ID))
	following, err := f.follows.IsFollowing(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestRecommendationsPriorityAndDedup(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	me := createTestUser(t, f.db, "me")
	friend := createTestUser(t, f.db, "friend")
	contact := createTestUser(t, f.db, "contact")
	mutual := createTestUser(t, f.db, "mutual")
	popular := createTestUser(t, f.db, "popular")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, me.ID, friend.ID))

	// friend follows both contact and mutual, so both are friends-of-friends;
	// contact also matches the address book and must surface once, as a contact.
	require.NoError(t, f.phlock.Follow(ctx, friend.ID, contact.ID))
	require.NoError(t, f.phlock.Follow(ctx, friend.ID, mutual.ID))

	// Two unrelated users keep popular in their phlocks.
	for i := 0; i < 2; i++ {
		fan := createTestUser(t, f.db, fmt.Sprintf("fan%d", i))
		require.NoError(t, f.phlock.Follow(ctx, fan.ID, popular.ID))
		require.NoError(t, f.phlock.AddToPhlock(ctx, fan.ID, popular.ID, 1))
	}

	recs, err := f.phlock.Recommendations(ctx, me.ID, []string{contact.Email}, 10)
	require.NoError(t, err)

	ids := make([]uint, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	require.NotEmpty(t, ids)
	assert.Equal(t, contact.ID, ids[0], "contacts rank first")
	assert.Contains(t, ids, mutual.ID)
	assert.Contains(t, ids, popular.ID)
	assert.NotContains(t, ids, me.ID)
	assert.NotContains(t, ids, friend.ID)

	seen := make(map[uint]int)
	for _, id := range ids {
		seen[id]++
	}
	assert.Equal(t, 1, seen[contact.ID], "contact match must not reappear as friend-of-friend")
}

func TestMembershipCacheInvalidatesOnWrite(t *testing.T) {
	f := newPhlockFixture(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")
	carol := createTestUser(t, f.db, "carol")

	ctx := context.Background()
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, f.phlock.Follow(ctx, alice.ID, carol.ID))
	require.NoError(t, f.phlock.AddToPhlock(ctx, alice.ID, bob.ID, 1))

	members, err := f.phlock.GetPhlockMembers(alice.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// A write through a different path does not invalidate; the cached list
	// persists until its TTL.
	follow, err := f.follows.GetFollow(alice.ID, carol.ID)
	require.NoError(t, err)
	position := 2
	follow.IsInPhlock = true
	follow.PhlockPosition = &position
	require.NoError(t, f.follows.UpdateFollow(follow))

	members, err = f.phlock.GetPhlockMembers(alice.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1, "stale within the cache window")

	// A service write invalidates and the next read is fresh.
	require.NoError(t, f.phlock.RemoveFromPhlock(ctx, alice.ID, bob.ID))
	members, err = f.phlock.GetPhlockMembers(alice.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, carol.ID, members[0].ID)
}
