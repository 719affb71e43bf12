package models

import "time"

// Share statuses. Transitions are not strictly ordered: a sent share may be
// played, saved, dismissed or forwarded, and saved is reversible.
const (
	ShareStatusSent      = "sent"
	ShareStatusPlayed    = "played"
	ShareStatusSaved     = "saved"
	ShareStatusDismissed = "dismissed"
	ShareStatusForwarded = "forwarded"
)

// DateLayout is the date-only form used for daily-song uniqueness. The day
// boundary is the sender's local calendar day, not UTC.
const DateLayout = "2006-01-02"

// Share is one track sent from a sender to a recipient. A daily song is a
// self-share with IsDailySong set and SelectedDate filled; the unique index
// on (sender_id, selected_date) is the backstop for the one-pick-per-day rule.
type Share struct {
	ID               string     `json:"id" gorm:"primaryKey;size:26"` // ULID
	SenderID         uint       `json:"sender_id" gorm:"index;uniqueIndex:idx_sender_selected_date"`
	RecipientID      uint       `json:"recipient_id" gorm:"index"` // equals SenderID for daily songs
	TrackID          string     `json:"track_id"`
	TrackName        string     `json:"track_name"`
	ArtistName       string     `json:"artist_name"`
	ArtistPlatformID string     `json:"artist_platform_id,omitempty"`
	AlbumArtURL      string     `json:"album_art_url"`
	PreviewURL       string     `json:"preview_url,omitempty"`
	Message          string     `json:"message,omitempty" gorm:"size:280"`
	Status           string     `json:"status" gorm:"size:12;default:'sent'"`
	IsDailySong      bool       `json:"is_daily_song"`
	SelectedDate     *string    `json:"selected_date,omitempty" gorm:"size:10;uniqueIndex:idx_sender_selected_date"`
	SavedAt          *time.Time `json:"saved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" gorm:"index"`
}

// Track carries caller-supplied track identity, optionally corrected by the
// platform catalog before a share row is written.
type Track struct {
	TrackID          string `json:"track_id" validate:"required"`
	TrackName        string `json:"track_name" validate:"required"`
	ArtistName       string `json:"artist_name" validate:"required"`
	ArtistPlatformID string `json:"artist_platform_id,omitempty"`
	AlbumArtURL      string `json:"album_art_url,omitempty"`
	PreviewURL       string `json:"preview_url,omitempty"`
}

type SelectDailySongRequest struct {
	Track Track  `json:"track" validate:"required"`
	Note  string `json:"note,omitempty" validate:"omitempty,max=280"`
}

type CreateShareRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required"`
	Track       Track  `json:"track" validate:"required"`
	Message     string `json:"message,omitempty" validate:"omitempty,max=280"`
}

type UpdateShareStatusRequest struct {
	Action string `json:"action" validate:"required,oneof=played saved unsaved dismissed"`
}
