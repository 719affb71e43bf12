package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"gorm.io/gorm"
)

// overlay is the client-held optimistic state for one signed-in user. It is
// session-scoped and never persisted; the rendering layer combines these
// deltas with backend-sourced base counts. Count deltas are nonzero only
// while a write is in flight: they compensate a base count read before the
// write, and are retired once the write commits, because a recomputed base
// already includes the row.
type overlay struct {
	likedShares      map[string]struct{}
	likeDelta        map[string]int
	commentDelta     map[string]int
	likedComments    map[uint]struct{}
	commentLikeDelta map[uint]int
}

func newOverlay() *overlay {
	return &overlay{
		likedShares:      make(map[string]struct{}),
		likeDelta:        make(map[string]int),
		commentDelta:     make(map[string]int),
		likedComments:    make(map[uint]struct{}),
		commentLikeDelta: make(map[uint]int),
	}
}

// Engagement gives like/comment actions instant local feedback while the
// backend write is in flight, rolling the optimistic state back whenever the
// write fails so visible state never permanently diverges from backend truth.
type Engagement struct {
	likes        repositories.LikeRepository
	comments     repositories.CommentRepository
	commentLikes repositories.CommentLikeRepository
	shares       repositories.ShareRepository
	notifier     *Notifier
	tasks        TaskRunner

	mu       sync.Mutex
	sessions map[uint]*overlay
}

// NewEngagement creates a new Engagement service
func NewEngagement(
	likes repositories.LikeRepository,
	comments repositories.CommentRepository,
	commentLikes repositories.CommentLikeRepository,
	shares repositories.ShareRepository,
	notifier *Notifier,
	tasks TaskRunner,
) *Engagement {
	return &Engagement{
		likes:        likes,
		comments:     comments,
		commentLikes: commentLikes,
		shares:       shares,
		notifier:     notifier,
		tasks:        tasks,
		sessions:     make(map[uint]*overlay),
	}
}

// optimistic applies a speculative local mutation, runs the backend call, and
// resolves the mutation either way: rollback reverts everything when the call
// fails, settle retires the count delta once the write is durable. Every
// like/comment path goes through this helper so the contract is uniform.
func optimistic(apply func(), call func() error, rollback, settle func()) error {
	apply()
	if err := call(); err != nil {
		rollback()
		return err
	}
	settle()
	return nil
}

func (s *Engagement) session(userID uint) *overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.sessions[userID]
	if !ok {
		o = newOverlay()
		s.sessions[userID] = o
	}
	return o
}

// IsLiked reports the optimistic liked state for a share.
func (s *Engagement) IsLiked(userID uint, shareID string) bool {
	o := s.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := o.likedShares[shareID]
	return ok
}

// ToggleLike likes or unlikes based on the current optimistic state and
// returns the resulting liked flag.
func (s *Engagement) ToggleLike(ctx context.Context, userID uint, shareID string) (bool, error) {
	if s.IsLiked(userID, shareID) {
		return false, s.Unlike(ctx, userID, shareID)
	}
	return true, s.Like(ctx, userID, shareID)
}

// Like marks a share liked locally before the backend insert and notifies the
// share owner after the insert succeeds. The notification never blocks or
// fails the like itself.
func (s *Engagement) Like(ctx context.Context, userID uint, shareID string) error {
	o := s.session(userID)
	err := optimistic(
		func() {
			s.mu.Lock()
			o.likedShares[shareID] = struct{}{}
			o.likeDelta[shareID]++
			s.mu.Unlock()
		},
		func() error {
			return s.likes.CreateLike(&models.Like{ShareID: shareID, UserID: userID})
		},
		func() {
			s.mu.Lock()
			delete(o.likedShares, shareID)
			o.likeDelta[shareID]--
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.likeDelta[shareID]--
			s.mu.Unlock()
		},
	)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// The backend already holds this like; adopt its state.
		s.mu.Lock()
		o.likedShares[shareID] = struct{}{}
		s.mu.Unlock()
		return ErrAlreadyLiked
	}
	if err != nil {
		return err
	}

	s.tasks.Go("notify:share_liked", func() error {
		share, err := s.shares.GetShareByID(shareID)
		if err != nil {
			return err
		}
		return s.notifier.RecordEvent(context.Background(), share.SenderID, userID, Event{
			Type:        models.NotificationShareLiked,
			TrackName:   share.TrackName,
			AlbumArtURL: share.AlbumArtURL,
			ShareID:     share.ID,
		})
	})
	return nil
}

// Unlike mirrors Like without a notification.
func (s *Engagement) Unlike(ctx context.Context, userID uint, shareID string) error {
	o := s.session(userID)
	return optimistic(
		func() {
			s.mu.Lock()
			delete(o.likedShares, shareID)
			o.likeDelta[shareID]--
			s.mu.Unlock()
		},
		func() error {
			return s.likes.DeleteLike(shareID, userID)
		},
		func() {
			s.mu.Lock()
			o.likedShares[shareID] = struct{}{}
			o.likeDelta[shareID]++
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.likeDelta[shareID]++
			s.mu.Unlock()
		},
	)
}

// HydrateLikeStatus unions the backend's answer for a page of share ids into
// the liked set, one query per page instead of one per item.
func (s *Engagement) HydrateLikeStatus(ctx context.Context, userID uint, shareIDs []string) error {
	liked, err := s.likes.GetLikedShareIDs(userID, shareIDs)
	if err != nil {
		return err
	}
	o := s.session(userID)
	s.mu.Lock()
	for _, id := range liked {
		o.likedShares[id] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// AdjustedLikeCount combines a backend-sourced base count with the local
// delta. Never negative.
func (s *Engagement) AdjustedLikeCount(userID uint, shareID string, original int) int {
	o := s.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return clampNonNegative(original + o.likeDelta[shareID])
}

// AdjustedCommentCount combines a base comment count with the local delta.
func (s *Engagement) AdjustedCommentCount(userID uint, shareID string, original int) int {
	o := s.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return clampNonNegative(original + o.commentDelta[shareID])
}

// AdjustedCommentLikeCount combines a base comment-like count with the delta.
func (s *Engagement) AdjustedCommentLikeCount(userID uint, commentID uint, original int) int {
	o := s.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return clampNonNegative(original + o.commentLikeDelta[commentID])
}

// AddComment validates, writes, bumps the local comment delta, and fires a
// notification to the share owner carrying a truncated preview. Replies set
// the isReply flag; threading is one level deep.
func (s *Engagement) AddComment(ctx context.Context, userID uint, shareID, content string, parentID *uint) (*models.Comment, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrCommentEmpty
	}
	if len([]rune(trimmed)) > models.MaxCommentLength {
		return nil, ErrCommentTooLong
	}

	comment := &models.Comment{
		ShareID:  shareID,
		UserID:   userID,
		ParentID: parentID,
		Content:  trimmed,
	}
	o := s.session(userID)
	err := optimistic(
		func() {
			s.mu.Lock()
			o.commentDelta[shareID]++
			s.mu.Unlock()
		},
		func() error {
			return s.comments.CreateComment(comment)
		},
		func() {
			s.mu.Lock()
			o.commentDelta[shareID]--
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.commentDelta[shareID]--
			s.mu.Unlock()
		},
	)
	if err != nil {
		return nil, err
	}

	s.tasks.Go("notify:comment_added", func() error {
		share, err := s.shares.GetShareByID(shareID)
		if err != nil {
			return err
		}
		return s.notifier.RecordEvent(context.Background(), share.SenderID, userID, Event{
			Type:        models.NotificationCommentAdded,
			TrackName:   share.TrackName,
			AlbumArtURL: share.AlbumArtURL,
			ShareID:     share.ID,
			CommentText: trimmed,
			IsReply:     parentID != nil,
		})
	})
	return comment, nil
}

// DeleteComment removes the caller's comment and decrements the local delta.
func (s *Engagement) DeleteComment(ctx context.Context, userID, commentID uint) error {
	comment, err := s.comments.GetCommentByID(commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return ErrNotCommentOwner
	}
	o := s.session(userID)
	return optimistic(
		func() {
			s.mu.Lock()
			o.commentDelta[comment.ShareID]--
			s.mu.Unlock()
		},
		func() error {
			return s.comments.DeleteComment(commentID)
		},
		func() {
			s.mu.Lock()
			o.commentDelta[comment.ShareID]++
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.commentDelta[comment.ShareID]++
			s.mu.Unlock()
		},
	)
}

// ToggleCommentLike likes or unlikes a comment based on optimistic state.
func (s *Engagement) ToggleCommentLike(ctx context.Context, userID, commentID uint) (bool, error) {
	o := s.session(userID)
	s.mu.Lock()
	_, liked := o.likedComments[commentID]
	s.mu.Unlock()
	if liked {
		return false, s.UnlikeComment(ctx, userID, commentID)
	}
	return true, s.LikeComment(ctx, userID, commentID)
}

// LikeComment mirrors Like for comments, notifying the comment author.
func (s *Engagement) LikeComment(ctx context.Context, userID, commentID uint) error {
	o := s.session(userID)
	err := optimistic(
		func() {
			s.mu.Lock()
			o.likedComments[commentID] = struct{}{}
			o.commentLikeDelta[commentID]++
			s.mu.Unlock()
		},
		func() error {
			return s.commentLikes.CreateCommentLike(&models.CommentLike{CommentID: commentID, UserID: userID})
		},
		func() {
			s.mu.Lock()
			delete(o.likedComments, commentID)
			o.commentLikeDelta[commentID]--
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.commentLikeDelta[commentID]--
			s.mu.Unlock()
		},
	)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		s.mu.Lock()
		o.likedComments[commentID] = struct{}{}
		s.mu.Unlock()
		return ErrAlreadyLiked
	}
	if err != nil {
		return err
	}

	s.tasks.Go("notify:comment_liked", func() error {
		comment, err := s.comments.GetCommentByID(commentID)
		if err != nil {
			return err
		}
		return s.notifier.RecordEvent(context.Background(), comment.UserID, userID, Event{
			Type:    models.NotificationCommentLiked,
			ShareID: comment.ShareID,
		})
	})
	return nil
}

// UnlikeComment mirrors Unlike for comments.
func (s *Engagement) UnlikeComment(ctx context.Context, userID, commentID uint) error {
	o := s.session(userID)
	return optimistic(
		func() {
			s.mu.Lock()
			delete(o.likedComments, commentID)
			o.commentLikeDelta[commentID]--
			s.mu.Unlock()
		},
		func() error {
			return s.commentLikes.DeleteCommentLike(commentID, userID)
		},
		func() {
			s.mu.Lock()
			o.likedComments[commentID] = struct{}{}
			o.commentLikeDelta[commentID]++
			s.mu.Unlock()
		},
		func() {
			s.mu.Lock()
			o.commentLikeDelta[commentID]++
			s.mu.Unlock()
		},
	)
}

// OrganizeIntoThreads partitions a flat comment list into top-level roots and
// a parent-id-keyed reply map. Replies to replies are not modeled.
func OrganizeIntoThreads(comments []models.Comment) ([]models.Comment, map[uint][]models.Comment) {
	var roots []models.Comment
	replies := make(map[uint][]models.Comment)
	for _, c := range comments {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			replies[*c.ParentID] = append(replies[*c.ParentID], c)
		}
	}
	return roots, replies
}

// ClearCache drops all overlay state for a user; called on sign-out.
func (s *Engagement) ClearCache(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
