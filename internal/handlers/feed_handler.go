package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/phlockapp/backend/internal/services"
)

// FeedItem is one phlock member's daily song with engagement state resolved
// for the viewer.
type FeedItem struct {
	Member        models.UserCompact `json:"member"`
	Share         *models.Share      `json:"share"`
	LikesCount    int                `json:"likes_count"`
	CommentsCount int                `json:"comments_count"`
	Liked         bool               `json:"liked"`
}

// FeedHandler serves the phlock feed: today's picks from the viewer's phlock
type FeedHandler struct {
	phlock     *services.Phlock
	shares     *services.Shares
	engagement *services.Engagement
	likes      repositories.LikeRepository
	comments   repositories.CommentRepository
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(
	phlock *services.Phlock,
	shares *services.Shares,
	engagement *services.Engagement,
	likes repositories.LikeRepository,
	comments repositories.CommentRepository,
) *FeedHandler {
	return &FeedHandler{
		phlock:     phlock,
		shares:     shares,
		engagement: engagement,
		likes:      likes,
		comments:   comments,
	}
}

// RegisterFeedRoutes registers feed routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed/phlock", h.GetPhlockFeed)
}

// GetPhlockFeed returns each phlock member with today's pick if they made
// one. Members who have not picked appear with a null share so the client can
// render the slot.
func (h *FeedHandler) GetPhlockFeed(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	members, err := h.phlock.GetPhlockMembers(currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	memberIDs := make([]uint, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.ID)
	}

	picks, err := h.shares.DailySongsFor(memberIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	byMember := make(map[uint]*models.Share, len(picks))
	shareIDs := make([]string, 0, len(picks))
	for i := range picks {
		byMember[picks[i].SenderID] = &picks[i]
		shareIDs = append(shareIDs, picks[i].ID)
	}

	if err := h.engagement.HydrateLikeStatus(c.Request().Context(), currentUserID, shareIDs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	items := make([]FeedItem, 0, len(members))
	for _, m := range members {
		item := FeedItem{Member: m.ToCompact()}
		if share, ok := byMember[m.ID]; ok {
			likeCount, err := h.likes.GetLikesCountByShareID(share.ID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			commentCount, err := h.comments.GetCommentsCountByShareID(share.ID)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			item.Share = share
			item.LikesCount = h.engagement.AdjustedLikeCount(currentUserID, share.ID, int(likeCount))
			item.CommentsCount = h.engagement.AdjustedCommentCount(currentUserID, share.ID, int(commentCount))
			item.Liked = h.engagement.IsLiked(currentUserID, share.ID)
		}
		items = append(items, item)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"feed": items}})
}
