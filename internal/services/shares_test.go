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

type sharesFixture struct {
	db       *gorm.DB
	shares   *Shares
	follows  repositories.FollowRepository
	repo     repositories.ShareRepository
	log      *fakeEngagementLog
	pusher   *fakePusher
	notifier *Notifier
}

func newSharesFixture(t *testing.T, at time.Time) *sharesFixture {
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
	engagementLog := &fakeEngagementLog{}
	shares := NewShares(shareRepo, followRepo, engagementLog, notifier, PassthroughCatalog{}, tasks, testLogger(), time.UTC)
	shares.now = fixedClock(at)

	return &sharesFixture{
		db:       db,
		shares:   shares,
		follows:  followRepo,
		repo:     shareRepo,
		log:      engagementLog,
		pusher:   pusher,
		notifier: notifier,
	}
}

func (f *sharesFixture) setNow(at time.Time) {
	f.shares.now = fixedClock(at)
	f.notifier.now = fixedClock(at)
}

// seedDailySong inserts a historical pick directly, bypassing the service.
func seedDailySong(t *testing.T, db *gorm.DB, userID uint, date string) {
	t.Helper()
	d := date
	share := &models.Share{
		ID:           fmt.Sprintf("01SEED%05d%s", userID, d),
		SenderID:     userID,
		RecipientID:  userID,
		TrackID:      "seed-track",
		TrackName:    "Seed Track",
		ArtistName:   "Seed Artist",
		Status:       models.ShareStatusSent,
		IsDailySong:  true,
		SelectedDate: &d,
	}
	require.NoError(t, db.Create(share).Error)
}

func testTrack() models.Track {
	return models.Track{
		TrackID:    "track-42",
		TrackName:  "Golden Hour",
		ArtistName: "Some Artist",
	}
}

func TestSelectDailySongOncePerLocalDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	user := createTestUser(t, f.db, "alice")

	ctx := context.Background()
	share, err := f.shares.SelectDailySong(ctx, user.ID, testTrack(), "my pick")
	require.NoError(t, err)
	assert.True(t, share.IsDailySong)
	require.NotNil(t, share.SelectedDate)
	assert.Equal(t, "2026-03-10", *share.SelectedDate)

	_, err = f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	assert.ErrorIs(t, err, ErrAlreadyPickedToday)

	picked, err := f.shares.HasPickedToday(user.ID)
	require.NoError(t, err)
	assert.True(t, picked)

	// Next local day the gate opens again.
	f.setNow(day.AddDate(0, 0, 1))
	_, err = f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	require.NoError(t, err)
}

func TestDailySongUniqueIndexBackstop(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	user := createTestUser(t, f.db, "alice")

	date := "2026-03-10"
	seedDailySong(t, f.db, user.ID, date)

	// A racing write that slipped past the pre-check hits the unique index.
	dup := &models.Share{
		ID:           "01HTESTDUPLICATE000000000A",
		SenderID:     user.ID,
		RecipientID:  user.ID,
		TrackID:      "other",
		TrackName:    "Other",
		ArtistName:   "Other",
		IsDailySong:  true,
		SelectedDate: &date,
	}
	err := f.repo.CreateShare(dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestNonDailySharesNeverCollideOnDate(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	_, err := f.shares.SendShare(ctx, alice.ID, bob.ID, testTrack(), "")
	require.NoError(t, err)
	_, err = f.shares.SendShare(ctx, alice.ID, bob.ID, testTrack(), "again")
	require.NoError(t, err, "null selected_date must not trip the unique index")
}

func TestStreakMilestoneFiresOnExactDay(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	user := createTestUser(t, f.db, "alice")

	// Six consecutive prior days; today's pick makes seven.
	for i := 1; i <= 6; i++ {
		seedDailySong(t, f.db, user.ID, day.AddDate(0, 0, -i).Format(models.DateLayout))
	}

	ctx := context.Background()
	_, err := f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	require.NoError(t, err)

	var rows []models.Notification
	require.NoError(t, f.db.Where("recipient_id = ? AND type = ?", user.ID, models.NotificationStreakMilestone).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].StreakDays)

	// Day eight is not a milestone.
	f.setNow(day.AddDate(0, 0, 1))
	_, err = f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	require.NoError(t, err)
	require.NoError(t, f.db.Where("recipient_id = ? AND type = ?", user.ID, models.NotificationStreakMilestone).Find(&rows).Error)
	assert.Len(t, rows, 1)
}

func TestDailySongFansOutToPhlockOwners(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	owner := createTestUser(t, f.db, "owner")
	member := createTestUser(t, f.db, "member")
	follower := createTestUser(t, f.db, "follower")

	// Owner has member in their phlock; follower merely follows.
	position := 1
	now := time.Now()
	require.NoError(t, f.follows.CreateFollow(&models.Follow{
		FollowerID:     owner.ID,
		FollowingID:    member.ID,
		IsInPhlock:     true,
		PhlockPosition: &position,
		PhlockAddedAt:  &now,
	}))
	require.NoError(t, f.follows.CreateFollow(&models.Follow{
		FollowerID:  follower.ID,
		FollowingID: member.ID,
	}))

	_, err := f.shares.SelectDailySong(context.Background(), member.ID, testTrack(), "")
	require.NoError(t, err)

	ownerRows := notificationsFor(t, f.db, owner.ID)
	require.Len(t, ownerRows, 1)
	assert.Equal(t, models.NotificationPhlockSongReady, ownerRows[0].Type)
	assert.Equal(t, member.ID, ownerRows[0].ActorID)

	assert.Empty(t, notificationsFor(t, f.db, follower.ID), "non-phlock followers are not notified")
}

func TestApplyStatusActionLifecycle(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	sender := createTestUser(t, f.db, "sender")
	recipient := createTestUser(t, f.db, "recipient")

	ctx := context.Background()
	share, err := f.shares.SendShare(ctx, sender.ID, recipient.ID, testTrack(), "check this out")
	require.NoError(t, err)

	played, err := f.shares.ApplyStatusAction(ctx, recipient.ID, share.ID, "played")
	require.NoError(t, err)
	assert.Equal(t, models.ShareStatusPlayed, played.Status)

	saved, err := f.shares.ApplyStatusAction(ctx, recipient.ID, share.ID, "saved")
	require.NoError(t, err)
	assert.Equal(t, models.ShareStatusSaved, saved.Status)
	assert.NotNil(t, saved.SavedAt)

	unsaved, err := f.shares.ApplyStatusAction(ctx, recipient.ID, share.ID, "unsaved")
	require.NoError(t, err)
	assert.Equal(t, models.ShareStatusPlayed, unsaved.Status)
	assert.Nil(t, unsaved.SavedAt)

	_, err = f.shares.ApplyStatusAction(ctx, recipient.ID, share.ID, "archived")
	assert.ErrorIs(t, err, ErrInvalidShareStatus)

	assert.Equal(t, []string{"played", "saved"}, f.log.actions(share.ID))

	// The sender hears about plays and saves anonymously, one aggregate row each.
	var rows []models.Notification
	require.NoError(t, f.db.Where("recipient_id = ? AND type IN ?", sender.ID,
		[]string{models.NotificationSongPlayed, models.NotificationSongSaved}).Find(&rows).Error)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Zero(t, row.ActorID)
	}
}

func TestForwardShareMarksOriginal(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	sender := createTestUser(t, f.db, "sender")
	recipient := createTestUser(t, f.db, "recipient")
	third := createTestUser(t, f.db, "third")

	ctx := context.Background()
	original, err := f.shares.SendShare(ctx, sender.ID, recipient.ID, testTrack(), "")
	require.NoError(t, err)

	forwarded, err := f.shares.ForwardShare(ctx, recipient.ID, original.ID, third.ID, "you need this")
	require.NoError(t, err)
	assert.Equal(t, third.ID, forwarded.RecipientID)
	assert.Equal(t, original.TrackID, forwarded.TrackID)

	reloaded, err := f.repo.GetShareByID(original.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShareStatusForwarded, reloaded.Status)
	assert.Equal(t, []string{"forwarded"}, f.log.actions(original.ID))

	// Both recipients got a new_share notification.
	var rows []models.Notification
	require.NoError(t, f.db.Where("type = ?", models.NotificationNewShare).Find(&rows).Error)
	assert.Len(t, rows, 2)
}

func TestShareActionsBelongToRecipient(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	sender := createTestUser(t, f.db, "sender")
	recipient := createTestUser(t, f.db, "recipient")
	stranger := createTestUser(t, f.db, "stranger")

	ctx := context.Background()
	share, err := f.shares.SendShare(ctx, sender.ID, recipient.ID, testTrack(), "")
	require.NoError(t, err)

	// Non-recipients get the same answer as for a share that does not exist.
	_, err = f.shares.ApplyStatusAction(ctx, stranger.ID, share.ID, "played")
	assert.ErrorIs(t, err, ErrShareNotFound)
	_, err = f.shares.ApplyStatusAction(ctx, sender.ID, share.ID, "saved")
	assert.ErrorIs(t, err, ErrShareNotFound)
	_, err = f.shares.ForwardShare(ctx, stranger.ID, share.ID, sender.ID, "")
	assert.ErrorIs(t, err, ErrShareNotFound)

	// Nothing leaked into the engagement log or the sender's notifications.
	assert.Empty(t, f.log.actions(share.ID))
	assert.Empty(t, notificationsFor(t, f.db, sender.ID))

	reloaded, err := f.repo.GetShareByID(share.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShareStatusSent, reloaded.Status)
}

func TestInboxExcludesOwnDailySongs(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	alice := createTestUser(t, f.db, "alice")
	bob := createTestUser(t, f.db, "bob")

	ctx := context.Background()
	_, err := f.shares.SelectDailySong(ctx, alice.ID, testTrack(), "")
	require.NoError(t, err)
	sent, err := f.shares.SendShare(ctx, bob.ID, alice.ID, testTrack(), "")
	require.NoError(t, err)

	inbox, err := f.shares.Inbox(alice.ID, 50)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, sent.ID, inbox[0].ID)
}

func TestResetTodaysDailySongReopensGate(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	f := newSharesFixture(t, day)
	user := createTestUser(t, f.db, "alice")

	ctx := context.Background()
	_, err := f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	require.NoError(t, err)

	require.NoError(t, f.shares.ResetTodaysDailySong(user.ID))

	picked, err := f.shares.HasPickedToday(user.ID)
	require.NoError(t, err)
	assert.False(t, picked)

	_, err = f.shares.SelectDailySong(ctx, user.ID, testTrack(), "")
	require.NoError(t, err)
}
