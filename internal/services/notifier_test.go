package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestNotifier(t *testing.T, db *gorm.DB, at time.Time) (*Notifier, *fakePusher) {
	t.Helper()
	pusher := &fakePusher{}
	n := NewNotifier(
		repositories.NewPostgresNotificationRepository(db),
		repositories.NewPostgresUserRepository(db),
		pusher,
		NewSyncRunner(testLogger()),
		time.UTC,
	)
	n.now = fixedClock(at)
	return n, pusher
}

func notificationsFor(t *testing.T, db *gorm.DB, recipientID uint) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, db.Where("recipient_id = ?", recipientID).Order("created_at DESC").Find(&rows).Error)
	return rows
}

func TestNudgeAggregatesIntoOneRowPerDay(t *testing.T) {
	db := newTestDB(t)
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	notifier, pusher := newTestNotifier(t, db, day)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	ctx := context.Background()
	nudge := Event{Type: models.NotificationDailyNudge}

	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, nudge))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, carol.ID, nudge))
	// Bob nudges a second time: merged, no third push.
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, nudge))

	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []uint{bob.ID, carol.ID}, rows[0].ActorIDs)
	assert.Contains(t, rows[0].Message, "and 1 other")
	assert.Nil(t, rows[0].ReadAt)

	assert.Equal(t, 2, pusher.countByType(models.NotificationDailyNudge))
}

func TestNudgeStartsFreshRowNextDay(t *testing.T) {
	db := newTestDB(t)
	day1 := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	notifier, _ := newTestNotifier(t, db, day1)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	ctx := context.Background()
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationDailyNudge}))

	notifier.now = fixedClock(day1.Add(2 * time.Hour)) // past midnight
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationDailyNudge}))

	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 2)
}

func TestFollowerNotificationDedupsForever(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	notifier, pusher := newTestNotifier(t, db, start)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	ctx := context.Background()
	follow := Event{Type: models.NotificationNewFollower}

	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, follow))
	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 1)
	require.NoError(t, notifier.MarkRead(rows[0].ID, alice.ID))

	// Bob unfollows and re-follows a week later: same row resurfaces unread,
	// no second push.
	notifier.now = fixedClock(start.AddDate(0, 0, 7))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, follow))

	rows = notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ReadAt)
	assert.True(t, rows[0].CreatedAt.After(start.AddDate(0, 0, 6)))
	assert.Equal(t, 1, pusher.countByType(models.NotificationNewFollower))
}

func TestAnonymousEngagementCountsWithoutIdentity(t *testing.T) {
	db := newTestDB(t)
	notifier, pusher := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	ctx := context.Background()
	played := Event{Type: models.NotificationSongPlayed, ShareID: "01HTESTSHARE0000000000000A"}

	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, played))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, carol.ID, played))

	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Count)
	assert.Zero(t, rows[0].ActorID, "engagement rows must stay anonymous")
	assert.Equal(t, 1, pusher.countByType(models.NotificationSongPlayed), "only the day's first event pushes")
}

func TestSelfActionsAreDropped(t *testing.T) {
	db := newTestDB(t)
	notifier, pusher := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")

	ctx := context.Background()
	for _, typ := range []string{
		models.NotificationShareLiked,
		models.NotificationCommentAdded,
		models.NotificationCommentLiked,
		models.NotificationSongPlayed,
		models.NotificationSongSaved,
	} {
		require.NoError(t, notifier.RecordEvent(ctx, alice.ID, alice.ID, Event{Type: typ}))
	}

	assert.Empty(t, notificationsFor(t, db, alice.ID))
	assert.Zero(t, pusher.count())
}

func TestCommentPreviewTruncatesAtRuneBoundary(t *testing.T) {
	db := newTestDB(t)
	notifier, _ := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	long := strings.Repeat("é", 150)
	require.NoError(t, notifier.RecordEvent(context.Background(), alice.ID, bob.ID, Event{
		Type:        models.NotificationCommentAdded,
		CommentText: long,
	}))

	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 1)
	preview := []rune(rows[0].CommentPreview)
	assert.Len(t, preview, 101)
	assert.Equal(t, '…', preview[100])
}

func TestListResolvesActorsInBatch(t *testing.T) {
	db := newTestDB(t)
	notifier, _ := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	ctx := context.Background()
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationDailyNudge}))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, carol.ID, Event{Type: models.NotificationDailyNudge}))

	views, err := notifier.List(ctx, alice.ID, 50)
	require.NoError(t, err)
	require.Len(t, views, 1)

	handles := make([]string, 0, len(views[0].Actors))
	for _, a := range views[0].Actors {
		handles = append(handles, a.Handle)
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, handles)
	require.NotNil(t, views[0].Actor)
	assert.Equal(t, "bob", views[0].Actor.Handle)
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	db := newTestDB(t)
	notifier, _ := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	ctx := context.Background()
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationNewFollower}))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, carol.ID, Event{Type: models.NotificationDailyNudge}))

	rows := notificationsFor(t, db, alice.ID)
	require.Len(t, rows, 2)

	// Another user cannot acknowledge Alice's notification, and her badge
	// count does not move.
	require.NoError(t, notifier.MarkRead(rows[0].ID, bob.ID))
	count, err := notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	var row models.Notification
	require.NoError(t, db.First(&row, rows[0].ID).Error)
	assert.Nil(t, row.ReadAt)

	// Reading the same row twice decrements the badge once.
	require.NoError(t, notifier.MarkRead(rows[0].ID, alice.ID))
	require.NoError(t, notifier.MarkRead(rows[0].ID, alice.ID))
	count, err = notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUnreadCountTracksReadsAndResurfacing(t *testing.T) {
	db := newTestDB(t)
	notifier, _ := newTestNotifier(t, db, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	ctx := context.Background()
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationNewFollower}))
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, carol.ID, Event{Type: models.NotificationDailyNudge}))

	count, err := notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	rows := notificationsFor(t, db, alice.ID)
	require.NoError(t, notifier.MarkRead(rows[0].ID, alice.ID))
	count, err = notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, notifier.MarkAllRead(alice.ID))
	count, err = notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// A resurfaced dedup row leaves the cached count uncertain; the next read
	// must come from the database.
	require.NoError(t, notifier.RecordEvent(ctx, alice.ID, bob.ID, Event{Type: models.NotificationNewFollower}))
	count, err = notifier.UnreadCount(alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
