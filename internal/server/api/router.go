package api

import (
	"net/http"

	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/ratelimit"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter creates the echo router with all routes and middleware. Only the
// sync endpoints that move file content are rate-limited.
func NewRouter(h *Handler, limiter ratelimit.Limiter, secret []byte, log logging.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, "access_token"},
		ExposeHeaders: []string{headerSyncToken, "Retry-After"},
	}))
	e.Use(RequestLogger(log.With("module", "http")))

	e.GET("/health", h.HandleHealth)

	g := e.Group("/api", Authenticate(secret))
	limited := RateLimit(limiter, log.With("module", "ratelimit"))

	g.GET("/quota", h.HandleQuota)
	g.GET("/libraries", h.HandleListLibraries)
	g.POST("/libraries", h.HandleCreateLibrary)
	g.GET("/libraries/:id", h.HandleGetLibrary)
	g.PATCH("/libraries/:id", h.HandleRenameLibrary)
	g.DELETE("/libraries/:id", h.HandleDeleteLibrary)
	g.POST("/libraries/:id/link", h.HandleLinkLibrary)
	g.POST("/libraries/:id/push", h.HandlePush, limited)
	g.PUT("/libraries/:id/overwrite", h.HandleOverwrite, limited)
	g.GET("/libraries/:id/pull", h.HandlePull, limited)
	g.POST("/libraries/:id/publish", h.HandlePublish, limited)
	g.GET("/libraries/:id/tree", h.HandleTree)
	g.GET("/libraries/:id/file", h.HandleSignedFile)
	g.GET("/libraries/:id/documents", h.HandleDocuments)

	return e
}
