package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/services"
	"gorm.io/gorm"
)

// getUserIDFromContext extracts the authenticated user id placed on the
// context by the JWT middleware. Zero means not authenticated.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

// domainHTTPError maps service-layer errors onto specific, actionable HTTP
// responses. Unknown errors stay 500s.
func domainHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, services.ErrAlreadyPickedToday),
		errors.Is(err, services.ErrAlreadyFollowing),
		errors.Is(err, services.ErrAlreadyLiked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrCommentEmpty),
		errors.Is(err, services.ErrCommentTooLong),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrInvalidPhlockPosition),
		errors.Is(err, services.ErrNotFollowing),
		errors.Is(err, services.ErrNotInPhlock),
		errors.Is(err, services.ErrCannotFollowSelf),
		errors.Is(err, services.ErrInvalidShareStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotCommentOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrShareNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
