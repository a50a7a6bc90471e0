package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/labstack/echo/v4"
)

const (
	fieldFiles     = "files"
	fieldPaths     = "paths"
	fieldDeletions = "deletions"

	headerSyncToken = "X-Sync-Token"

	// multipartOverhead covers part headers and boundaries on top of the
	// payload bytes.
	multipartOverhead = 1 << 20
	// formMemory is how much of a form is held in memory before parts spill
	// to temporary files.
	formMemory = 8 << 20
)

// readUploadForm parses a multipart upload with the body capped at the batch
// limit. The caller must RemoveAll the returned form.
func (h *Handler) readUploadForm(c echo.Context) (*multipart.Form, error) {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.maxBatchSize+multipartOverhead)

	if err := req.ParseMultipartForm(formMemory); err != nil {
		if isBodyTooLarge(err) {
			return nil, batchTooLarge(h.maxBatchSize)
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed multipart body")
	}
	if req.MultipartForm == nil {
		return &multipart.Form{}, nil
	}
	return req.MultipartForm, nil
}

// uploadsFromForm turns the files parts into uploads. multipart strips
// directories from part file names, so the i-th paths value carries the
// relative path of the i-th file; without it the file name is used.
func uploadsFromForm(form *multipart.Form) ([]models.FileUpload, error) {
	files := form.File[fieldFiles]
	paths := form.Value[fieldPaths]
	if len(paths) > 0 && len(paths) != len(files) {
		return nil, fmt.Errorf("%w: %d paths for %d files", common.ErrInvalidPath, len(paths), len(files))
	}

	uploads := make([]models.FileUpload, 0, len(files))
	for i, fh := range files {
		rel := fh.Filename
		if len(paths) > 0 {
			rel = paths[i]
		}
		uploads = append(uploads, models.FileUpload{
			RelativePath: rel,
			Size:         fh.Size,
			Open:         openPart(fh),
		})
	}
	return uploads, nil
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}
