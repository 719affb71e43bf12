package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/phlockapp/backend/internal/services"
)

// EngagementHandler handles like and comment HTTP requests through the
// optimistic overlay.
type EngagementHandler struct {
	engagement   *services.Engagement
	comments     repositories.CommentRepository
	commentLikes repositories.CommentLikeRepository
	likes        repositories.LikeRepository
}

// NewEngagementHandler creates a new EngagementHandler
func NewEngagementHandler(
	engagement *services.Engagement,
	comments repositories.CommentRepository,
	commentLikes repositories.CommentLikeRepository,
	likes repositories.LikeRepository,
) *EngagementHandler {
	return &EngagementHandler{
		engagement:   engagement,
		comments:     comments,
		commentLikes: commentLikes,
		likes:        likes,
	}
}

// RegisterEngagementRoutes registers like/comment routes
func (h *EngagementHandler) RegisterEngagementRoutes(g *echo.Group) {
	g.POST("/shares/:id/likes/toggle", h.ToggleLike)
	g.GET("/shares/:id/likes/count", h.GetLikesCount)
	g.POST("/shares/likes/status", h.HydrateLikeStatus)
	g.POST("/shares/:id/comments", h.CreateComment)
	g.GET("/shares/:id/comments", h.GetComments)
	g.DELETE("/comments/:id", h.DeleteComment)
	g.POST("/comments/:id/likes/toggle", h.ToggleCommentLike)
	g.POST("/session/signout", h.SignOut)
}

// ToggleLike likes or unlikes a share and returns the resulting state
func (h *EngagementHandler) ToggleLike(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	liked, err := h.engagement.ToggleLike(c.Request().Context(), currentUserID, c.Param("id"))
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"liked": liked}})
}

// GetLikesCount returns the backend base count adjusted by the local delta
func (h *EngagementHandler) GetLikesCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	shareID := c.Param("id")

	base, err := h.likes.GetLikesCountByShareID(shareID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	adjusted := h.engagement.AdjustedLikeCount(currentUserID, shareID, int(base))

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"share_id":    shareID,
			"likes_count": adjusted,
			"liked":       h.engagement.IsLiked(currentUserID, shareID),
		},
	})
}

// HydrateLikeStatus answers which of a page of shares the user liked, in one
// batched query
func (h *EngagementHandler) HydrateLikeStatus(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.LikeStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.engagement.HydrateLikeStatus(c.Request().Context(), currentUserID, req.ShareIDs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := make(map[string]bool, len(req.ShareIDs))
	for _, id := range req.ShareIDs {
		status[id] = h.engagement.IsLiked(currentUserID, id)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"liked": status}})
}

// CreateComment adds a comment or one-level reply to a share
func (h *EngagementHandler) CreateComment(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	comment, err := h.engagement.AddComment(c.Request().Context(), currentUserID, c.Param("id"), req.Content, req.ParentID)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"comment": comment}})
}

// GetComments returns a share's comments organized into one-level threads
func (h *EngagementHandler) GetComments(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	comments, err := h.comments.GetCommentsByShareID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	roots, replies := services.OrganizeIntoThreads(comments)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"comments": roots, "replies": replies},
	})
}

// DeleteComment removes the caller's own comment
func (h *EngagementHandler) DeleteComment(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid comment ID")
	}

	if err := h.engagement.DeleteComment(c.Request().Context(), currentUserID, uint(commentID)); err != nil {
		return domainHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleCommentLike likes or unlikes a comment
func (h *EngagementHandler) ToggleCommentLike(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	commentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid comment ID")
	}

	liked, err := h.engagement.ToggleCommentLike(c.Request().Context(), currentUserID, uint(commentID))
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"liked": liked}})
}

// SignOut clears the caller's optimistic overlay state
func (h *EngagementHandler) SignOut(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	h.engagement.ClearCache(currentUserID)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"signed_out": true}})
}
