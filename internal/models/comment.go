package models

import "gorm.io/gorm"

// MaxCommentLength is the hard cap on comment and share-note text.
const MaxCommentLength = 280

// Comment represents a comment on a share. Threading is exactly one level
// deep: a reply references a parent comment id, replies-to-replies are not
// modeled.
type Comment struct {
	gorm.Model
	ShareID  string `json:"share_id" gorm:"index"`
	UserID   uint   `json:"user_id" gorm:"index"`
	ParentID *uint  `json:"parent_id,omitempty" gorm:"index"` // nil for top-level comments
	Content  string `json:"content" gorm:"size:280"`
}

// IsReply reports whether the comment is a threaded reply.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Content  string `json:"content" validate:"required,min=1,max=280"`
	ParentID *uint  `json:"parent_id,omitempty"`
}
