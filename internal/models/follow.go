package models

import "time"

// PhlockSize is the fixed number of phlock slots per user.
const PhlockSize = 5

// Follow represents a directed follow relationship. A followee may also
// occupy one of the follower's phlock slots (positions 1..5, distinct).
type Follow struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	FollowerID     uint       `json:"follower_id" gorm:"index;uniqueIndex:idx_follower_following"`
	FollowingID    uint       `json:"following_id" gorm:"index;uniqueIndex:idx_follower_following"`
	IsInPhlock     bool       `json:"is_in_phlock" gorm:"index"`
	PhlockPosition *int       `json:"phlock_position,omitempty"` // 1..5 when in phlock
	PhlockAddedAt  *time.Time `json:"phlock_added_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PhlockSwap is a scheduled replacement of one phlock member by another,
// deferred to the next local midnight when the incoming member has already
// picked today (avoids mid-day disruption to a rendered feed).
type PhlockSwap struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       uint       `json:"user_id" gorm:"index"`
	OutUserID    uint       `json:"out_user_id"`
	InUserID     uint       `json:"in_user_id"`
	ExecuteAfter time.Time  `json:"execute_after" gorm:"index"`
	AppliedAt    *time.Time `json:"applied_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type AddToPhlockRequest struct {
	UserID   uint `json:"user_id" validate:"required"`
	Position int  `json:"position" validate:"required,min=1,max=5"`
}

type ReorderPhlockRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,max=5"`
}

type SwapPhlockRequest struct {
	OutUserID uint `json:"out_user_id" validate:"required"`
	InUserID  uint `json:"in_user_id" validate:"required"`
}

type RecommendationsRequest struct {
	ContactEmails []string `json:"contact_emails,omitempty" validate:"omitempty,dive,email"`
}
