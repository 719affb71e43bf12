package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow request statuses.
const (
	FollowRequestPending  = "pending"
	FollowRequestAccepted = "accepted"
	FollowRequestRejected = "rejected"
)

// FollowRequest is a pending unilateral request to follow a private profile.
// At most one non-deleted request exists per (requester, target); accepting
// atomically creates the corresponding Follow row.
type FollowRequest struct {
	gorm.Model
	RequesterID uint       `json:"requester_id" gorm:"index"`
	TargetID    uint       `json:"target_id" gorm:"index"`
	Status      string     `json:"status" gorm:"size:20;default:'pending'"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

type CreateFollowRequestRequest struct {
	TargetID uint `json:"target_id" validate:"required"`
}
