package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
	"github.com/gosimple/slug"
	"github.com/labstack/echo/v4"
)

// LibraryAPI is the engine surface the handlers call.
type LibraryAPI interface {
	CreateLibrary(ctx context.Context, userID, name string) (*models.Library, error)
	ListLibraries(ctx context.Context, userID string) ([]*models.Library, error)
	GetLibrary(ctx context.Context, userID, libraryID string) (*models.Library, error)
	RenameLibrary(ctx context.Context, userID, libraryID, newName string, expectedVersion int64) (*models.Library, error)
	LinkLibrary(ctx context.Context, userID, libraryID string) (*models.Library, error)
	DeleteLibrary(ctx context.Context, userID, libraryID string) error
	Push(ctx context.Context, userID, libraryID string, batch models.SyncBatch) (*models.SyncSummary, error)
	Overwrite(ctx context.Context, userID, libraryID string, files []models.FileUpload) (*models.SyncSummary, error)
	Pull(ctx context.Context, userID, libraryID string) (io.ReadCloser, *models.Library, error)
	Publish(ctx context.Context, userID, libraryID, relativePath string, meta models.PublishMetadata) (*models.PublishResult, error)
	FileTree(ctx context.Context, userID, libraryID string, branch storage.Branch, dir string) ([]models.TreeNode, error)
	SignedFile(ctx context.Context, userID, libraryID string, branch storage.Branch, relativePath string) (*models.SignedFile, error)
	Quota(ctx context.Context, userID string) (models.QuotaSnapshot, error)
	Documents(ctx context.Context, userID, libraryID string) ([]*models.Document, error)
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler contains the HTTP handlers of the library sync API.
type Handler struct {
	svc          LibraryAPI
	db           Pinger
	maxBatchSize int64
	log          logging.Logger
}

// NewHandler creates a handler. maxBatchSize bounds request bodies of the
// upload endpoints; multipart framing gets a small allowance on top.
func NewHandler(svc LibraryAPI, db Pinger, maxBatchSize int64, log logging.Logger) *Handler {
	return &Handler{svc: svc, db: db, maxBatchSize: maxBatchSize, log: log.With("module", "api")}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status, dbStatus := "healthy", "connected"
	if err := h.db.PingContext(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": status, "database": dbStatus})
}

// HandleQuota handles GET /api/quota.
func (h *Handler) HandleQuota(c echo.Context) error {
	q, err := h.svc.Quota(c.Request().Context(), userID(c))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// HandleListLibraries handles GET /api/libraries.
func (h *Handler) HandleListLibraries(c echo.Context) error {
	libs, err := h.svc.ListLibraries(c.Request().Context(), userID(c))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	out := make([]libraryResponse, 0, len(libs))
	for _, l := range libs {
		out = append(out, toLibraryResponse(l))
	}
	return c.JSON(http.StatusOK, out)
}

// HandleCreateLibrary handles POST /api/libraries.
func (h *Handler) HandleCreateLibrary(c echo.Context) error {
	var req createLibraryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	lib, err := h.svc.CreateLibrary(c.Request().Context(), userID(c), req.Name)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toLibraryResponse(lib))
}

// HandleGetLibrary handles GET /api/libraries/:id.
func (h *Handler) HandleGetLibrary(c echo.Context) error {
	lib, err := h.svc.GetLibrary(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toLibraryResponse(lib))
}

// HandleRenameLibrary handles PATCH /api/libraries/:id. The body carries the
// version the client last saw.
func (h *Handler) HandleRenameLibrary(c echo.Context) error {
	var req renameLibraryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	lib, err := h.svc.RenameLibrary(c.Request().Context(), userID(c), c.Param("id"), req.Name, req.Version)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toLibraryResponse(lib))
}

// HandleDeleteLibrary handles DELETE /api/libraries/:id. A delete whose
// object cleanup was deferred answers 202, since a retry would only see 404.
func (h *Handler) HandleDeleteLibrary(c echo.Context) error {
	err := h.svc.DeleteLibrary(c.Request().Context(), userID(c), c.Param("id"))
	if errors.Is(err, common.ErrCleanupPending) {
		return c.JSON(http.StatusAccepted, echo.Map{"status": common.ErrCleanupPending.Error()})
	}
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleLinkLibrary handles POST /api/libraries/:id/link.
func (h *Handler) HandleLinkLibrary(c echo.Context) error {
	lib, err := h.svc.LinkLibrary(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toLibraryResponse(lib))
}

// HandlePush handles POST /api/libraries/:id/push.
func (h *Handler) HandlePush(c echo.Context) error {
	form, err := h.readUploadForm(c)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	defer form.RemoveAll()

	uploads, err := uploadsFromForm(form)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	batch := models.SyncBatch{Uploads: uploads, Deletions: form.Value[fieldDeletions]}
	summary, err := h.svc.Push(c.Request().Context(), userID(c), c.Param("id"), batch)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// HandleOverwrite handles PUT /api/libraries/:id/overwrite.
func (h *Handler) HandleOverwrite(c echo.Context) error {
	form, err := h.readUploadForm(c)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	defer form.RemoveAll()

	uploads, err := uploadsFromForm(form)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	summary, err := h.svc.Overwrite(c.Request().Context(), userID(c), c.Param("id"), uploads)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// HandlePull handles GET /api/libraries/:id/pull and streams the private
// branch as a zip. The sync token travels in a response header.
func (h *Handler) HandlePull(c echo.Context) error {
	ctx := c.Request().Context()

	rc, lib, err := h.svc.Pull(ctx, userID(c), c.Param("id"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	defer rc.Close()

	name := slug.Make(lib.Name)
	if name == "" {
		name = lib.ID
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+".zip"))
	res.Header().Set(headerSyncToken, lib.Token().String())

	if err := c.Stream(http.StatusOK, "application/zip", rc); err != nil {
		// Headers are already out; the client sees a truncated archive.
		h.log.Error(ctx, "pull stream aborted", "library_id", lib.ID, "error", err)
	}
	return nil
}

// HandlePublish handles POST /api/libraries/:id/publish.
func (h *Handler) HandlePublish(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.svc.Publish(c.Request().Context(), userID(c), c.Param("id"), req.Path, req.PublishMetadata)
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleTree handles GET /api/libraries/:id/tree?branch=&path=.
func (h *Handler) HandleTree(c echo.Context) error {
	branch, err := storage.ParseBranch(c.QueryParam("branch"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	nodes, err := h.svc.FileTree(c.Request().Context(), userID(c), c.Param("id"), branch, c.QueryParam("path"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, nodes)
}

// HandleSignedFile handles GET /api/libraries/:id/file?branch=&path=.
func (h *Handler) HandleSignedFile(c echo.Context) error {
	branch, err := storage.ParseBranch(c.QueryParam("branch"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	signed, err := h.svc.SignedFile(c.Request().Context(), userID(c), c.Param("id"), branch, c.QueryParam("path"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, signed)
}

// HandleDocuments handles GET /api/libraries/:id/documents.
func (h *Handler) HandleDocuments(c echo.Context) error {
	docs, err := h.svc.Documents(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return h.mapServiceError(c, err)
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{
			ID:            d.ID,
			PublishedPath: d.PublishedPath,
			Title:         d.Title,
			Description:   d.Description,
			Slug:          d.Slug,
			BookmarkCount: d.BookmarkCount,
			UpdatedAt:     d.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func batchTooLarge(limit int64) error {
	return &common.OversizedInputError{Scope: "batch", Size: limit + 1, Max: limit}
}
