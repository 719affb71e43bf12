package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// streakMilestones are the day counts that fire a milestone notification,
// once each, on the exact day they are reached.
var streakMilestones = map[int]bool{7: true, 30: true, 100: true}

// Shares owns the share lifecycle: daily-song picks with the one-per-local-day
// rule, friend shares, forwards, and status transitions with their engagement
// log entries and owner notifications.
type Shares struct {
	shares      repositories.ShareRepository
	follows     repositories.FollowRepository
	engagements repositories.EngagementRepository
	notifier    *Notifier
	catalog     MusicCatalog
	tasks       TaskRunner
	log         *logrus.Logger
	loc         *time.Location
	now         func() time.Time
}

// NewShares creates a new Shares service
func NewShares(
	shares repositories.ShareRepository,
	follows repositories.FollowRepository,
	engagements repositories.EngagementRepository,
	notifier *Notifier,
	catalog MusicCatalog,
	tasks TaskRunner,
	log *logrus.Logger,
	loc *time.Location,
) *Shares {
	if loc == nil {
		loc = time.Local
	}
	return &Shares{
		shares:      shares,
		follows:     follows,
		engagements: engagements,
		notifier:    notifier,
		catalog:     catalog,
		tasks:       tasks,
		log:         log,
		loc:         loc,
		now:         time.Now,
	}
}

func (s *Shares) today() string {
	return s.now().In(s.loc).Format(models.DateLayout)
}

// SelectDailySong records today's pick. The pre-check gives the friendly
// domain error; the unique index on (sender_id, selected_date) is the
// backstop for two devices racing the pick.
func (s *Shares) SelectDailySong(ctx context.Context, userID uint, track models.Track, note string) (*models.Share, error) {
	if len([]rune(note)) > models.MaxCommentLength {
		return nil, ErrMessageTooLong
	}

	today := s.today()
	if _, err := s.shares.GetDailySong(userID, today); err == nil {
		return nil, ErrAlreadyPickedToday
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Best-effort metadata enrichment; validation failure is non-fatal.
	resolved, err := s.catalog.Lookup(ctx, track)
	if err != nil {
		s.log.WithError(err).WithField("track_id", track.TrackID).Debug("catalog lookup failed, using caller data")
		resolved = track
	}

	share := &models.Share{
		ID:               newShareID(s.now()),
		SenderID:         userID,
		RecipientID:      userID,
		TrackID:          resolved.TrackID,
		TrackName:        resolved.TrackName,
		ArtistName:       resolved.ArtistName,
		ArtistPlatformID: resolved.ArtistPlatformID,
		AlbumArtURL:      resolved.AlbumArtURL,
		PreviewURL:       resolved.PreviewURL,
		Message:          strings.TrimSpace(note),
		Status:           models.ShareStatusSent,
		IsDailySong:      true,
		SelectedDate:     &today,
		CreatedAt:        s.now().In(s.loc),
	}
	if err := s.shares.CreateShare(share); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyPickedToday
		}
		return nil, err
	}

	// Fan-out and streak detection run detached: a user who picked
	// successfully sees success even if these fail.
	s.tasks.Go("dailysong:phlock_fanout", func() error {
		return s.notifyPhlockOwners(userID, share)
	})
	s.tasks.Go("dailysong:streak_check", func() error {
		return s.checkStreakMilestone(userID, today)
	})

	return share, nil
}

func (s *Shares) notifyPhlockOwners(userID uint, share *models.Share) error {
	ownerIDs, err := s.follows.GetPhlockOwnerIDs(userID)
	if err != nil {
		return err
	}
	for _, ownerID := range ownerIDs {
		err := s.notifier.RecordEvent(context.Background(), ownerID, userID, Event{
			Type:        models.NotificationPhlockSongReady,
			TrackName:   share.TrackName,
			AlbumArtURL: share.AlbumArtURL,
			ShareID:     share.ID,
		})
		if err != nil {
			s.log.WithError(err).WithField("owner_id", ownerID).Warn("phlock fan-out notification failed")
		}
	}
	return nil
}

// checkStreakMilestone fires exactly once per milestone: the streak equals a
// milestone value only on the day it is reached, and a second same-day pick
// is rejected before it could re-trigger.
func (s *Shares) checkStreakMilestone(userID uint, today string) error {
	streak, err := s.currentStreak(userID, today)
	if err != nil {
		return err
	}
	if !streakMilestones[streak] {
		return nil
	}
	return s.notifier.RecordEvent(context.Background(), userID, 0, Event{
		Type:       models.NotificationStreakMilestone,
		StreakDays: streak,
	})
}

// currentStreak counts consecutive daily-song days ending today.
func (s *Shares) currentStreak(userID uint, today string) (int, error) {
	dates, err := s.shares.RecentDailyDates(userID, 128)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		seen[d] = true
	}

	day, err := time.ParseInLocation(models.DateLayout, today, s.loc)
	if err != nil {
		return 0, err
	}
	streak := 0
	for seen[day.Format(models.DateLayout)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// TodaysDailySong returns the user's pick for today, or gorm.ErrRecordNotFound.
func (s *Shares) TodaysDailySong(userID uint) (*models.Share, error) {
	return s.shares.GetDailySong(userID, s.today())
}

// HasPickedToday is the privacy-preserving gate: it leaks no song content.
func (s *Shares) HasPickedToday(userID uint) (bool, error) {
	return s.shares.HasDailySongOnDate(userID, s.today())
}

// ResetTodaysDailySong removes today's pick. Debug/reset path only.
func (s *Shares) ResetTodaysDailySong(userID uint) error {
	return s.shares.DeleteDailySong(userID, s.today())
}

// DailySongsFor returns today's picks for the given users, in one query.
func (s *Shares) DailySongsFor(userIDs []uint) ([]models.Share, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return s.shares.GetDailySongsForDate(userIDs, s.today())
}

// SendShare sends a track to a friend with an optional note.
func (s *Shares) SendShare(ctx context.Context, senderID, recipientID uint, track models.Track, message string) (*models.Share, error) {
	if len([]rune(message)) > models.MaxCommentLength {
		return nil, ErrMessageTooLong
	}

	resolved, err := s.catalog.Lookup(ctx, track)
	if err != nil {
		s.log.WithError(err).WithField("track_id", track.TrackID).Debug("catalog lookup failed, using caller data")
		resolved = track
	}

	share := &models.Share{
		ID:               newShareID(s.now()),
		SenderID:         senderID,
		RecipientID:      recipientID,
		TrackID:          resolved.TrackID,
		TrackName:        resolved.TrackName,
		ArtistName:       resolved.ArtistName,
		ArtistPlatformID: resolved.ArtistPlatformID,
		AlbumArtURL:      resolved.AlbumArtURL,
		PreviewURL:       resolved.PreviewURL,
		Message:          strings.TrimSpace(message),
		Status:           models.ShareStatusSent,
		CreatedAt:        s.now().In(s.loc),
	}
	if err := s.shares.CreateShare(share); err != nil {
		return nil, err
	}

	s.tasks.Go("notify:new_share", func() error {
		return s.notifier.RecordEvent(context.Background(), recipientID, senderID, Event{
			Type:        models.NotificationNewShare,
			TrackName:   share.TrackName,
			AlbumArtURL: share.AlbumArtURL,
			ShareID:     share.ID,
		})
	})
	return share, nil
}

// ForwardShare re-shares a received track to another friend and marks the
// original forwarded.
func (s *Shares) ForwardShare(ctx context.Context, userID uint, shareID string, recipientID uint, message string) (*models.Share, error) {
	original, err := s.shares.GetShareByID(shareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}
	// Only the recipient may forward; others cannot tell the share exists.
	if original.RecipientID != userID {
		return nil, ErrShareNotFound
	}

	forwarded, err := s.SendShare(ctx, userID, recipientID, models.Track{
		TrackID:          original.TrackID,
		TrackName:        original.TrackName,
		ArtistName:       original.ArtistName,
		ArtistPlatformID: original.ArtistPlatformID,
		AlbumArtURL:      original.AlbumArtURL,
		PreviewURL:       original.PreviewURL,
	}, message)
	if err != nil {
		return nil, err
	}

	if err := s.shares.UpdateStatus(original.ID, models.ShareStatusForwarded); err != nil {
		return nil, err
	}
	s.appendEngagement(original, userID, models.EngagementForwarded)
	return forwarded, nil
}

// ApplyStatusAction applies played/saved/unsaved/dismissed to a share,
// appends the engagement log entry, and routes anonymous owner notifications
// through the aggregator. Saved is reversible via "unsaved".
func (s *Shares) ApplyStatusAction(ctx context.Context, userID uint, shareID, action string) (*models.Share, error) {
	share, err := s.shares.GetShareByID(shareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareNotFound
		}
		return nil, err
	}
	// Status transitions belong to the share's recipient; anyone else gets
	// the same answer as for a share that does not exist.
	if share.RecipientID != userID {
		return nil, ErrShareNotFound
	}

	switch action {
	case models.EngagementPlayed:
		if err := s.shares.UpdateStatus(share.ID, models.ShareStatusPlayed); err != nil {
			return nil, err
		}
		share.Status = models.ShareStatusPlayed
		s.appendEngagement(share, userID, models.EngagementPlayed)
		s.notifyEngagement(share, userID, models.NotificationSongPlayed)
	case models.EngagementSaved:
		savedAt := s.now().In(s.loc)
		if err := s.shares.SetSaved(share.ID, &savedAt); err != nil {
			return nil, err
		}
		share.Status = models.ShareStatusSaved
		share.SavedAt = &savedAt
		s.appendEngagement(share, userID, models.EngagementSaved)
		s.notifyEngagement(share, userID, models.NotificationSongSaved)
	case "unsaved":
		if err := s.shares.SetSaved(share.ID, nil); err != nil {
			return nil, err
		}
		share.Status = models.ShareStatusPlayed
		share.SavedAt = nil
	case models.EngagementDismissed:
		if err := s.shares.UpdateStatus(share.ID, models.ShareStatusDismissed); err != nil {
			return nil, err
		}
		share.Status = models.ShareStatusDismissed
		s.appendEngagement(share, userID, models.EngagementDismissed)
	default:
		return nil, ErrInvalidShareStatus
	}
	return share, nil
}

// appendEngagement writes the analytics log entry; best-effort, the status
// change already committed.
func (s *Shares) appendEngagement(share *models.Share, userID uint, action string) {
	shareID := share.ID
	s.tasks.Go("engagement:"+action, func() error {
		return s.engagements.AppendEvent(context.Background(), &models.EngagementEvent{
			ShareID:   shareID,
			UserID:    userID,
			Action:    action,
			CreatedAt: s.now(),
		})
	})
}

func (s *Shares) notifyEngagement(share *models.Share, userID uint, notifType string) {
	ownerID, shareID := share.SenderID, share.ID
	trackName, albumArt := share.TrackName, share.AlbumArtURL
	s.tasks.Go("notify:"+notifType, func() error {
		return s.notifier.RecordEvent(context.Background(), ownerID, userID, Event{
			Type:        notifType,
			TrackName:   trackName,
			AlbumArtURL: albumArt,
			ShareID:     shareID,
		})
	})
}

// Inbox lists shares sent to a user by others.
func (s *Shares) Inbox(userID uint, limit int) ([]models.Share, error) {
	return s.shares.GetSharesForRecipient(userID, limit)
}

// newShareID mints a lexicographically sortable share id.
func newShareID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
