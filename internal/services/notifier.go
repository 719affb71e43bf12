package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"gorm.io/gorm"
)

// commentPreviewLimit is the truncation point for comment text carried in
// notification metadata.
const commentPreviewLimit = 100

// Event carries the type-specific payload for RecordEvent.
type Event struct {
	Type        string
	TrackName   string
	AlbumArtURL string
	StreakDays  int
	ShareID     string
	CommentText string
	IsReply     bool
}

// NotificationView is a notification row with actor identities resolved.
type NotificationView struct {
	models.Notification
	Actor  *models.UserCompact  `json:"actor,omitempty"`
	Actors []models.UserCompact `json:"actors,omitempty"`
}

// Notifier converts discrete social events into notification rows, applying
// per-type aggregation so repeated events merge instead of spamming the feed,
// and dispatches push notifications for genuinely new events.
type Notifier struct {
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	pusher        Pusher
	tasks         TaskRunner
	loc           *time.Location
	now           func() time.Time

	mu     sync.Mutex
	unread map[uint]int64 // cached unread counts, invalidated on uncertain writes
}

// NewNotifier creates a new Notifier
func NewNotifier(
	notifications repositories.NotificationRepository,
	users repositories.UserRepository,
	pusher Pusher,
	tasks TaskRunner,
	loc *time.Location,
) *Notifier {
	if loc == nil {
		loc = time.Local
	}
	return &Notifier{
		notifications: notifications,
		users:         users,
		pusher:        pusher,
		tasks:         tasks,
		loc:           loc,
		now:           time.Now,
		unread:        make(map[uint]int64),
	}
}

// RecordEvent converts one social event into a notification row, branching on
// the per-type aggregation rule. Events a user performs on their own content
// are silently dropped before any write.
func (s *Notifier) RecordEvent(ctx context.Context, recipientID, actorID uint, event Event) error {
	switch event.Type {
	case models.NotificationShareLiked,
		models.NotificationCommentAdded,
		models.NotificationCommentLiked,
		models.NotificationSongPlayed,
		models.NotificationSongSaved:
		if recipientID == actorID {
			return nil
		}
	}

	switch event.Type {
	case models.NotificationDailyNudge:
		return s.recordNudge(ctx, recipientID, actorID)
	case models.NotificationNewFollower, models.NotificationFollowRequest:
		return s.recordFollowEvent(ctx, recipientID, actorID, event.Type)
	case models.NotificationSongPlayed, models.NotificationSongSaved:
		return s.recordAnonymousEngagement(ctx, recipientID, event)
	default:
		return s.recordDirect(ctx, recipientID, actorID, event)
	}
}

// recordNudge aggregates all of today's nudges for a recipient into a single
// row. The actor-id list is unioned and the row timestamp refreshed on every
// nudge; a push goes out only the first time a given actor appears today.
func (s *Notifier) recordNudge(ctx context.Context, recipientID, actorID uint) error {
	now := s.now().In(s.loc)
	existing, err := s.notifications.FindDailyAggregate(recipientID, models.NotificationDailyNudge, s.startOfDay(now))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		handle := s.actorHandle(actorID)
		row := &models.Notification{
			RecipientID: recipientID,
			ActorID:     actorID,
			Type:        models.NotificationDailyNudge,
			ActorIDs:    []uint{actorID},
			Message:     nudgeMessage(handle, 1),
			CreatedAt:   now,
		}
		if err := s.notifications.CreateNotification(row); err != nil {
			return err
		}
		s.bumpUnread(recipientID, 1)
		s.dispatchPush(recipientID, row.Type, row.Message, pushData(actorID, ""))
		return nil
	}

	if containsID(existing.ActorIDs, actorID) {
		// Duplicate nudge from someone who already nudged today: refresh the
		// row, no second push.
		s.invalidateUnread(recipientID)
		return s.notifications.UpdateActorSet(existing.ID, existing.ActorIDs, existing.Message, now)
	}

	merged := append(existing.ActorIDs, actorID)
	message := nudgeMessage(s.actorHandle(actorID), len(merged))
	if err := s.notifications.UpdateActorSet(existing.ID, merged, message, now); err != nil {
		return err
	}
	s.invalidateUnread(recipientID)
	s.dispatchPush(recipientID, models.NotificationDailyNudge, message, pushData(actorID, ""))
	return nil
}

// recordFollowEvent keeps at most one row per (recipient, actor, type) ever.
// A repeat event resurfaces the existing row as unread without a second push.
func (s *Notifier) recordFollowEvent(ctx context.Context, recipientID, actorID uint, notifType string) error {
	now := s.now().In(s.loc)
	existing, err := s.notifications.FindByRecipientActorType(recipientID, actorID, notifType)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		message := followMessage(s.actorHandle(actorID), notifType)
		row := &models.Notification{
			RecipientID: recipientID,
			ActorID:     actorID,
			Type:        notifType,
			Message:     message,
			CreatedAt:   now,
		}
		if err := s.notifications.CreateNotification(row); err != nil {
			return err
		}
		s.bumpUnread(recipientID, 1)
		s.dispatchPush(recipientID, notifType, message, pushData(actorID, ""))
		return nil
	}

	if err := s.notifications.RefreshUnread(existing.ID, now); err != nil {
		return err
	}
	s.invalidateUnread(recipientID)
	return nil
}

// recordAnonymousEngagement keeps one count-only row per (recipient, type,
// local day). Identity stays anonymous; only the day's first event pushes.
func (s *Notifier) recordAnonymousEngagement(ctx context.Context, recipientID uint, event Event) error {
	now := s.now().In(s.loc)
	existing, err := s.notifications.FindDailyAggregate(recipientID, event.Type, s.startOfDay(now))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		message := anonymousMessage(event.Type)
		row := &models.Notification{
			RecipientID: recipientID,
			Type:        event.Type,
			Count:       1,
			Message:     message,
			TrackName:   event.TrackName,
			AlbumArtURL: event.AlbumArtURL,
			ShareID:     event.ShareID,
			CreatedAt:   now,
		}
		if err := s.notifications.CreateNotification(row); err != nil {
			return err
		}
		s.bumpUnread(recipientID, 1)
		s.dispatchPush(recipientID, event.Type, message, pushData(0, event.ShareID))
		return nil
	}

	if err := s.notifications.IncrementCount(existing.ID, now); err != nil {
		return err
	}
	s.invalidateUnread(recipientID)
	return nil
}

// recordDirect always inserts a fresh row; these types never aggregate.
func (s *Notifier) recordDirect(ctx context.Context, recipientID, actorID uint, event Event) error {
	row := &models.Notification{
		RecipientID:    recipientID,
		ActorID:        actorID,
		Type:           event.Type,
		TrackName:      event.TrackName,
		AlbumArtURL:    event.AlbumArtURL,
		StreakDays:     event.StreakDays,
		ShareID:        event.ShareID,
		CommentPreview: truncatePreview(event.CommentText, commentPreviewLimit),
		IsReply:        event.IsReply,
		CreatedAt:      s.now().In(s.loc),
	}
	row.Message = directMessage(s.actorHandle(actorID), row)
	if err := s.notifications.CreateNotification(row); err != nil {
		return err
	}
	s.bumpUnread(recipientID, 1)
	s.dispatchPush(recipientID, event.Type, row.Message, pushData(actorID, event.ShareID))
	return nil
}

// List returns a user's notifications newest first, resolving every actor
// identity (single and aggregated) in one batched lookup.
func (s *Notifier) List(ctx context.Context, userID uint, limit int) ([]NotificationView, error) {
	rows, err := s.notifications.GetByRecipientID(userID, limit)
	if err != nil {
		return nil, err
	}

	idSet := make(map[uint]struct{})
	for _, n := range rows {
		if n.ActorID != 0 {
			idSet[n.ActorID] = struct{}{}
		}
		for _, id := range n.ActorIDs {
			idSet[id] = struct{}{}
		}
	}
	ids := make([]uint, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	actors, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(actors))
	for _, u := range actors {
		byID[u.ID] = u.ToCompact()
	}

	views := make([]NotificationView, len(rows))
	for i, n := range rows {
		views[i] = NotificationView{Notification: n}
		if actor, ok := byID[n.ActorID]; ok {
			views[i].Actor = &actor
		}
		for _, id := range n.ActorIDs {
			if actor, ok := byID[id]; ok {
				views[i].Actors = append(views[i].Actors, actor)
			}
		}
	}
	return views, nil
}

// MarkRead sets a notification's read timestamp. The cached unread counter
// only moves when the row actually flipped, so re-reads and other users'
// notification ids cannot skew it.
func (s *Notifier) MarkRead(notificationID, recipientID uint) error {
	flipped, err := s.notifications.MarkAsRead(notificationID, recipientID, s.now().In(s.loc))
	if err != nil {
		return err
	}
	if flipped {
		s.bumpUnread(recipientID, -1)
	}
	return nil
}

// MarkAllRead marks every unread notification read and zeroes the cache.
func (s *Notifier) MarkAllRead(recipientID uint) error {
	if err := s.notifications.MarkAllAsRead(recipientID, s.now().In(s.loc)); err != nil {
		return err
	}
	s.mu.Lock()
	s.unread[recipientID] = 0
	s.mu.Unlock()
	return nil
}

// UnreadCount returns the unread total, served from the cached counter when
// available so UI badge updates do not re-query on every render.
func (s *Notifier) UnreadCount(recipientID uint) (int64, error) {
	s.mu.Lock()
	if count, ok := s.unread[recipientID]; ok {
		s.mu.Unlock()
		return count, nil
	}
	s.mu.Unlock()

	count, err := s.notifications.GetUnreadCount(recipientID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.unread[recipientID] = count
	s.mu.Unlock()
	return count, nil
}

func (s *Notifier) bumpUnread(recipientID uint, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count, ok := s.unread[recipientID]; ok {
		next := count + delta
		if next < 0 {
			next = 0
		}
		s.unread[recipientID] = next
	}
}

// invalidateUnread drops the cached counter when a write leaves the true
// count uncertain (refreshed dedup rows may or may not have been read).
func (s *Notifier) invalidateUnread(recipientID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, recipientID)
}

func (s *Notifier) dispatchPush(recipientID uint, typeTag, body string, data map[string]string) {
	s.tasks.Go("push:"+typeTag, func() error {
		return s.pusher.Send(context.Background(), recipientID, "Phlock", body, typeTag, data)
	})
}

func (s *Notifier) startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// actorHandle resolves a display handle for message composition. A zero id or
// failed lookup degrades to an anonymous placeholder rather than failing the
// notification write.
func (s *Notifier) actorHandle(actorID uint) string {
	if actorID == 0 {
		return ""
	}
	user, err := s.users.GetUserByID(actorID)
	if err != nil {
		return ""
	}
	return user.Handle
}

func nudgeMessage(handle string, actorCount int) string {
	who := "@" + handle
	if handle == "" {
		who = "Someone"
	}
	switch {
	case actorCount <= 1:
		return fmt.Sprintf("%s nudged you to pick today's song", who)
	case actorCount == 2:
		return fmt.Sprintf("%s and 1 other nudged you to pick today's song", who)
	default:
		return fmt.Sprintf("%s and %d others nudged you to pick today's song", who, actorCount-1)
	}
}

func followMessage(handle, notifType string) string {
	who := "@" + handle
	if handle == "" {
		who = "Someone"
	}
	if notifType == models.NotificationFollowRequest {
		return who + " requested to follow you"
	}
	return who + " started following you"
}

func anonymousMessage(notifType string) string {
	if notifType == models.NotificationSongSaved {
		return "Someone saved your song"
	}
	return "Someone played your song"
}

func directMessage(handle string, n *models.Notification) string {
	who := "@" + handle
	if handle == "" {
		who = "Someone"
	}
	switch n.Type {
	case models.NotificationNewShare:
		if n.TrackName != "" {
			return fmt.Sprintf("%s sent you %q", who, n.TrackName)
		}
		return who + " sent you a song"
	case models.NotificationFriendJoined:
		return who + " joined Phlock"
	case models.NotificationPhlockSongReady:
		return who + " picked their daily song"
	case models.NotificationStreakMilestone:
		return fmt.Sprintf("You're on a %d-day streak!", n.StreakDays)
	case models.NotificationShareLiked:
		if n.TrackName != "" {
			return fmt.Sprintf("%s liked %q", who, n.TrackName)
		}
		return who + " liked your song"
	case models.NotificationCommentAdded:
		if n.IsReply {
			return fmt.Sprintf("%s replied: %s", who, n.CommentPreview)
		}
		return fmt.Sprintf("%s commented: %s", who, n.CommentPreview)
	case models.NotificationCommentLiked:
		return who + " liked your comment"
	default:
		return who + " sent you a notification"
	}
}

func pushData(actorID uint, shareID string) map[string]string {
	data := make(map[string]string, 2)
	if actorID != 0 {
		data["actor_id"] = strconv.FormatUint(uint64(actorID), 10)
	}
	if shareID != "" {
		data["share_id"] = shareID
	}
	return data
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// truncatePreview cuts text at limit runes, appending an ellipsis when
// anything was dropped.
func truncatePreview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
