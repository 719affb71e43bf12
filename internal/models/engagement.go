package models

import "time"

// Engagement actions. The log is append-only and used for analytics
// (engagement rate) only; entries are never mutated.
const (
	EngagementPlayed    = "played"
	EngagementSaved     = "saved"
	EngagementDismissed = "dismissed"
	EngagementForwarded = "forwarded"
)

// EngagementEvent is one append-only log entry (MongoDB).
type EngagementEvent struct {
	ShareID   string    `json:"share_id" bson:"share_id"`
	UserID    uint      `json:"user_id" bson:"user_id"`
	Action    string    `json:"action" bson:"action"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
