package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/services"
	"gorm.io/gorm"
)

// ShareHandler handles share and daily-song HTTP requests
type ShareHandler struct {
	shares *services.Shares
}

// NewShareHandler creates a new ShareHandler
func NewShareHandler(shares *services.Shares) *ShareHandler {
	return &ShareHandler{shares: shares}
}

// RegisterShareRoutes registers share-related routes
func (h *ShareHandler) RegisterShareRoutes(g *echo.Group) {
	g.POST("/shares", h.SendShare)
	g.GET("/shares/inbox", h.Inbox)
	g.POST("/shares/:id/forward", h.ForwardShare)
	g.PUT("/shares/:id/status", h.UpdateStatus)
	g.POST("/daily-song", h.SelectDailySong)
	g.GET("/daily-song", h.GetTodaysDailySong)
	g.GET("/users/:id/daily-song/picked", h.HasPickedToday)
	g.DELETE("/daily-song", h.ResetTodaysDailySong)
}

// SendShare sends a track to another user
func (h *ShareHandler) SendShare(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	share, err := h.shares.SendShare(c.Request().Context(), currentUserID, req.RecipientID, req.Track, req.Message)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"share": share}})
}

// Inbox lists shares sent to the current user
func (h *ShareHandler) Inbox(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	shares, err := h.shares.Inbox(currentUserID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"shares": shares}})
}

// ForwardShare re-shares a received track to another user
func (h *ShareHandler) ForwardShare(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req struct {
		RecipientID uint   `json:"recipient_id" validate:"required"`
		Message     string `json:"message,omitempty" validate:"omitempty,max=280"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	share, err := h.shares.ForwardShare(c.Request().Context(), currentUserID, c.Param("id"), req.RecipientID, req.Message)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"share": share}})
}

// UpdateStatus applies a played/saved/unsaved/dismissed action to a share
func (h *ShareHandler) UpdateStatus(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.UpdateShareStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	share, err := h.shares.ApplyStatusAction(c.Request().Context(), currentUserID, c.Param("id"), req.Action)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"share": share}})
}

// SelectDailySong records today's pick for the current user
func (h *ShareHandler) SelectDailySong(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.SelectDailySongRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	share, err := h.shares.SelectDailySong(c.Request().Context(), currentUserID, req.Track, req.Note)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"share": share}})
}

// GetTodaysDailySong returns today's pick, or a null share if none yet
func (h *ShareHandler) GetTodaysDailySong(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	share, err := h.shares.TodaysDailySong(currentUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"share": nil}})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"share": share}})
}

// HasPickedToday is the boolean gate that never exposes song content
func (h *ShareHandler) HasPickedToday(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	picked, err := h.shares.HasPickedToday(uint(targetID))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"picked": picked}})
}

// ResetTodaysDailySong removes today's pick (debug/reset path)
func (h *ShareHandler) ResetTodaysDailySong(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	if err := h.shares.ResetTodaysDailySong(currentUserID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
