package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/libsync/internal/dbx"
	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// LibraryCatalog is the relational record of libraries and their
// dependents.
type LibraryCatalog interface {
	Create(ctx context.Context, ownerID, name string) (*models.Library, error)
	Get(ctx context.Context, id string) (*models.Library, error)
	List(ctx context.Context, ownerID string) ([]*models.Library, error)
	Rename(ctx context.Context, id, newName string, expectedVersion int64) (*models.Library, error)
	Link(ctx context.Context, id string, at time.Time) (*models.Library, error)
	AdjustStorageUsed(ctx context.Context, id string, delta int64) (*models.Library, error)
	SetStorageUsed(ctx context.Context, id string, bytes int64) (*models.Library, error)
	// SoftDeleteCascade marks the library and every live document, tag link
	// and bookmark under it deleted, all or nothing.
	SoftDeleteCascade(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	MarkPurged(ctx context.Context, id string) error
	// MarkPurgeAttempted records a failed purge. PendingPurge lists
	// libraries never attempted first, then by oldest attempt.
	MarkPurgeAttempted(ctx context.Context, id string) error
	PendingPurge(ctx context.Context, limit int) ([]*models.Library, error)
	Usage(ctx context.Context, ownerID string) (libraries int64, storageBytes int64, err error)
	Documents(ctx context.Context, libraryID string) ([]*models.Document, error)
}

// Catalog implements LibraryCatalog over the Postgres repositories.
type Catalog struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	newID       func() string
	log         logging.Logger
}

var _ LibraryCatalog = (*Catalog)(nil)

// NewCatalog returns a catalog that runs single statements on db and opens
// its own transactions for cascades.
func NewCatalog(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *Catalog {
	return &Catalog{
		db:          db,
		repomanager: m,
		newID:       uuid.NewString,
		log:         log,
	}
}

func (c *Catalog) Create(ctx context.Context, ownerID, name string) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).Create(ctx, &models.Library{
		ID:      c.newID(),
		OwnerID: ownerID,
		Name:    name,
	})
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).Get(ctx, id)
}

func (c *Catalog) List(ctx context.Context, ownerID string) ([]*models.Library, error) {
	return c.repomanager.Libraries(c.db).ListByOwner(ctx, ownerID)
}

func (c *Catalog) Rename(ctx context.Context, id, newName string, expectedVersion int64) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).Rename(ctx, id, newName, expectedVersion)
}

func (c *Catalog) Link(ctx context.Context, id string, at time.Time) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).Link(ctx, id, at)
}

func (c *Catalog) AdjustStorageUsed(ctx context.Context, id string, delta int64) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).AdjustStorageUsed(ctx, id, delta)
}

func (c *Catalog) SetStorageUsed(ctx context.Context, id string, bytes int64) (*models.Library, error) {
	return c.repomanager.Libraries(c.db).SetStorageUsed(ctx, id, bytes)
}

func (c *Catalog) SoftDeleteCascade(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, c.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		docs := c.repomanager.Documents(tx)

		tags, err := docs.SoftDeleteTagsByLibrary(ctx, id)
		if err != nil {
			return fmt.Errorf("soft delete tag links: %w", err)
		}
		bookmarks, err := docs.SoftDeleteBookmarksByLibrary(ctx, id)
		if err != nil {
			return fmt.Errorf("soft delete bookmarks: %w", err)
		}
		documents, err := docs.SoftDeleteByLibrary(ctx, id)
		if err != nil {
			return fmt.Errorf("soft delete documents: %w", err)
		}
		if err := c.repomanager.Libraries(tx).SoftDelete(ctx, id); err != nil {
			return err
		}

		c.log.Debug(ctx, "cascade staged",
			"library_id", id, "documents", documents, "tag_links", tags, "bookmarks", bookmarks)
		return nil
	})
}

func (c *Catalog) Discard(ctx context.Context, id string) error {
	return c.repomanager.Libraries(c.db).Discard(ctx, id)
}

func (c *Catalog) MarkPurged(ctx context.Context, id string) error {
	return c.repomanager.Libraries(c.db).MarkPurged(ctx, id)
}

func (c *Catalog) MarkPurgeAttempted(ctx context.Context, id string) error {
	return c.repomanager.Libraries(c.db).MarkPurgeAttempted(ctx, id)
}

func (c *Catalog) PendingPurge(ctx context.Context, limit int) ([]*models.Library, error) {
	return c.repomanager.Libraries(c.db).ListPendingPurge(ctx, limit)
}

func (c *Catalog) Usage(ctx context.Context, ownerID string) (int64, int64, error) {
	repo := c.repomanager.Libraries(c.db)

	count, err := repo.CountLive(ctx, ownerID)
	if err != nil {
		return 0, 0, err
	}
	used, err := repo.StorageUsed(ctx, ownerID)
	if err != nil {
		return 0, 0, err
	}
	return count, used, nil
}

func (c *Catalog) Documents(ctx context.Context, libraryID string) ([]*models.Document, error) {
	return c.repomanager.Documents(c.db).ListByLibrary(ctx, libraryID)
}
