package documents

import (
	"context"

	"github.com/dmitrijs2005/libsync/internal/server/models"
)

// UpsertParams describes one publish of a file. An empty Title or
// Description keeps the stored value when the document already exists;
// FallbackTitle is only used when a new document is created without a title.
type UpsertParams struct {
	ID            string
	OwnerID       string
	LibraryID     string
	PublishedPath string
	Title         string
	FallbackTitle string
	Description   string
	Slug          string
}

// Repository persists published documents with their tags and bookmarks.
type Repository interface {
	Upsert(ctx context.Context, p UpsertParams) (*models.Document, error)
	ReplaceTags(ctx context.Context, documentID string, tags []string) error
	ListByLibrary(ctx context.Context, libraryID string) ([]*models.Document, error)
	SoftDeleteTagsByLibrary(ctx context.Context, libraryID string) (int64, error)
	SoftDeleteBookmarksByLibrary(ctx context.Context, libraryID string) (int64, error)
	SoftDeleteByLibrary(ctx context.Context, libraryID string) (int64, error)
}
