package models

import "time"

// Notification types. Aggregating types merge repeated events into one row
// instead of inserting duplicates.
const (
	NotificationDailyNudge      = "daily_nudge"       // aggregates by (recipient, local day), actor list
	NotificationNewFollower     = "new_follower"      // dedups by (recipient, actor) forever
	NotificationFollowRequest   = "follow_request"    // dedups by (recipient, actor) forever
	NotificationSongPlayed      = "song_played"       // aggregates by (recipient, local day), anonymous count
	NotificationSongSaved       = "song_saved"        // aggregates by (recipient, local day), anonymous count
	NotificationNewShare        = "new_share"
	NotificationFriendJoined    = "friend_joined"
	NotificationPhlockSongReady = "phlock_song_ready"
	NotificationStreakMilestone = "streak_milestone"
	NotificationShareLiked      = "share_liked"
	NotificationCommentAdded    = "comment_added"
	NotificationCommentLiked    = "comment_liked"
)

// Notification represents one feed entry surfaced to a user (PostgreSQL).
type Notification struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	RecipientID uint   `json:"recipient_id" gorm:"index"`
	ActorID     uint   `json:"actor_id,omitempty" gorm:"index"` // zero for anonymous/system rows
	Type        string `json:"type" gorm:"size:30;index"`
	Message     string `json:"message"`

	// Type-specific metadata.
	ActorIDs       []uint `json:"actor_ids,omitempty" gorm:"serializer:json"` // daily_nudge actor set
	Count          int    `json:"count,omitempty"`                            // anonymous engagement counter
	TrackName      string `json:"track_name,omitempty"`
	AlbumArtURL    string `json:"album_art_url,omitempty"`
	StreakDays     int    `json:"streak_days,omitempty"`
	ShareID        string `json:"share_id,omitempty" gorm:"index"`
	CommentPreview string `json:"comment_preview,omitempty" gorm:"size:120"`
	IsReply        bool   `json:"is_reply,omitempty"`

	ReadAt    *time.Time `json:"read_at" gorm:"index"` // null = unread
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
