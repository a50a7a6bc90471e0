package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/labstack/echo/v4"
)

// mapServiceError translates service errors into HTTP responses. Typed
// quota and size errors expose their numbers so clients can render them.
func (h *Handler) mapServiceError(c echo.Context, err error) error {
	var (
		limit     *common.LimitExceededError
		oversized *common.OversizedInputError
		httpErr   *echo.HTTPError
	)

	switch {
	case errors.As(err, &limit):
		status := http.StatusPaymentRequired
		if limit.Resource == common.ResourceLibraries {
			status = http.StatusForbidden
		}
		return c.JSON(status, echo.Map{
			"error":     limit.Error(),
			"resource":  limit.Resource,
			"plan":      limit.Plan,
			"current":   limit.Current,
			"limit":     limit.Limit,
			"requested": limit.Requested,
			"shortfall": limit.Shortfall,
		})
	case errors.As(err, &oversized):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": oversized.Error(),
			"scope": oversized.Scope,
			"path":  oversized.Path,
			"size":  oversized.Size,
			"max":   oversized.Max,
		})
	case errors.As(err, &httpErr):
		return c.JSON(httpErr.Code, echo.Map{"error": httpErr.Message})
	case errors.Is(err, common.ErrorNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, common.ErrDuplicateName):
		return c.JSON(http.StatusConflict, echo.Map{"error": "a library with this name already exists"})
	case errors.Is(err, common.ErrVersionConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "library was modified, reload and retry"})
	case errors.Is(err, common.ErrPrefixConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": common.ErrPrefixConflict.Error()})
	case errors.Is(err, common.ErrPushFirst):
		return c.JSON(http.StatusConflict, echo.Map{"error": common.ErrPushFirst.Error()})
	case errors.Is(err, common.ErrInvalidPath), errors.Is(err, common.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, common.ErrSyncFailed):
		h.log.Error(c.Request().Context(), "sync failed", "error", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	case errors.Is(err, common.ErrStoreUnavailable):
		h.log.Error(c.Request().Context(), "object store unavailable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage temporarily unavailable, retry later"})
	default:
		h.log.Error(c.Request().Context(), "request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
