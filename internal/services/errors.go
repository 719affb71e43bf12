package services

import "errors"

// Domain validation errors. These are surfaced synchronously to the caller
// and never retried automatically.
var (
	ErrAlreadyPickedToday    = errors.New("daily song already picked today")
	ErrCommentEmpty          = errors.New("comment must not be empty")
	ErrCommentTooLong        = errors.New("comment exceeds 280 characters")
	ErrMessageTooLong        = errors.New("message exceeds 280 characters")
	ErrInvalidPhlockPosition = errors.New("phlock position must be between 1 and 5")
	ErrNotFollowing          = errors.New("not following this user")
	ErrAlreadyFollowing      = errors.New("already following this user")
	ErrNotInPhlock           = errors.New("user is not in the phlock")
	ErrCannotFollowSelf      = errors.New("cannot follow yourself")
	ErrNotCommentOwner       = errors.New("comment belongs to another user")
	ErrAlreadyLiked          = errors.New("already liked")
	ErrInvalidShareStatus    = errors.New("invalid share status transition")
	ErrShareNotFound         = errors.New("share not found")
)
