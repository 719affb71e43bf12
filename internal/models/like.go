package models

import "gorm.io/gorm"

// Like represents a like on a share
type Like struct {
	gorm.Model
	ShareID string `json:"share_id" gorm:"index;uniqueIndex:idx_share_user"`
	UserID  uint   `json:"user_id" gorm:"index;uniqueIndex:idx_share_user"`
}

// CommentLike represents a like on a comment
type CommentLike struct {
	gorm.Model
	CommentID uint `json:"comment_id" gorm:"index;uniqueIndex:idx_comment_user"`
	UserID    uint `json:"user_id" gorm:"index;uniqueIndex:idx_comment_user"`
}

// LikeStatusRequest is the batched "which of these did I like" hydration query.
type LikeStatusRequest struct {
	ShareIDs []string `json:"share_ids" validate:"required,min=1"`
}
