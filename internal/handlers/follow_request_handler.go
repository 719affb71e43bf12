package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/services"
)

// FollowRequestHandler handles follow-request HTTP requests
type FollowRequestHandler struct {
	phlock *services.Phlock
}

// NewFollowRequestHandler creates a new FollowRequestHandler
func NewFollowRequestHandler(phlock *services.Phlock) *FollowRequestHandler {
	return &FollowRequestHandler{phlock: phlock}
}

// RegisterFollowRequestRoutes registers follow-request routes
func (h *FollowRequestHandler) RegisterFollowRequestRoutes(g *echo.Group) {
	g.POST("/users/:id/follow-request", h.CreateRequest)
	g.GET("/follow-requests", h.GetPendingRequests)
	g.PUT("/follow-requests/:id/accept", h.AcceptRequest)
	g.PUT("/follow-requests/:id/reject", h.RejectRequest)
}

// CreateRequest asks to follow a user. A repeated ask while one is pending is
// a no-op.
func (h *FollowRequestHandler) CreateRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	if err := h.phlock.RequestFollow(c.Request().Context(), currentUserID, uint(targetID)); err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"requested": true}})
}

// GetPendingRequests lists follow requests awaiting the current user's answer
func (h *FollowRequestHandler) GetPendingRequests(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requests, err := h.phlock.PendingFollowRequests(currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"requests": requests}})
}

// AcceptRequest accepts a pending follow request
func (h *FollowRequestHandler) AcceptRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requestID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request ID")
	}

	if err := h.phlock.AcceptFollowRequest(c.Request().Context(), currentUserID, uint(requestID)); err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"accepted": true}})
}

// RejectRequest rejects a pending follow request
func (h *FollowRequestHandler) RejectRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requestID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request ID")
	}

	if err := h.phlock.RejectFollowRequest(c.Request().Context(), currentUserID, uint(requestID)); err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"rejected": true}})
}
