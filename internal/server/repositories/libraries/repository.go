package libraries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/libsync/internal/server/models"
)

// Repository persists library records. Reads and writes other than
// Discard, MarkPurged, MarkPurgeAttempted and ListPendingPurge only see live (not soft-deleted)
// rows.
type Repository interface {
	Create(ctx context.Context, lib *models.Library) (*models.Library, error)
	Get(ctx context.Context, id string) (*models.Library, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Library, error)
	Rename(ctx context.Context, id, name string, expectedVersion int64) (*models.Library, error)
	Link(ctx context.Context, id string, at time.Time) (*models.Library, error)
	AdjustStorageUsed(ctx context.Context, id string, delta int64) (*models.Library, error)
	SetStorageUsed(ctx context.Context, id string, bytes int64) (*models.Library, error)
	SoftDelete(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	MarkPurged(ctx context.Context, id string) error
	MarkPurgeAttempted(ctx context.Context, id string) error
	ListPendingPurge(ctx context.Context, limit int) ([]*models.Library, error)
	CountLive(ctx context.Context, ownerID string) (int64, error)
	StorageUsed(ctx context.Context, ownerID string) (int64, error)
}
