package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// validateUploads normalizes upload paths and applies the static size caps.
// It makes no network call.
func (s *LibraryService) validateUploads(uploads []models.FileUpload) ([]models.FileUpload, error) {
	out := make([]models.FileUpload, len(uploads))
	seen := make(map[string]struct{}, len(uploads))
	for i, u := range uploads {
		rel, err := storage.CleanRelativePath(u.RelativePath)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[rel]; dup {
			return nil, fmt.Errorf("%w: %s appears more than once in the batch", common.ErrInvalidPath, rel)
		}
		seen[rel] = struct{}{}
		if u.Size < 0 {
			return nil, fmt.Errorf("%w: %s has a negative size", common.ErrInvalidPath, rel)
		}
		u.RelativePath = rel
		if u.ContentType == "" {
			u.ContentType = storage.ContentTypeFor(rel)
		}
		out[i] = u
	}
	if err := s.quota.CheckFileSize(out); err != nil {
		return nil, err
	}
	if err := s.quota.CheckBatchSize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// cleanDeletions normalizes deletion paths and drops repeats, so each key is
// sized and deleted once.
func cleanDeletions(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		rel, err := storage.CleanRelativePath(p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	return out, nil
}

// Push applies an incremental diff to the private branch: deletions first,
// then uploads. Any object failure aborts the push and leaves the usage
// counter untouched.
func (s *LibraryService) Push(ctx context.Context, userID, libraryID string, batch models.SyncBatch) (*models.SyncSummary, error) {
	uploads, err := s.validateUploads(batch.Uploads)
	if err != nil {
		return nil, err
	}
	deletions, err := cleanDeletions(batch.Deletions)
	if err != nil {
		return nil, err
	}

	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}

	incoming := models.SyncBatch{Uploads: uploads}.TotalUploadBytes()
	if err := s.quota.CheckStorageLimit(ctx, userID, incoming); err != nil {
		return nil, err
	}

	freed, err := s.deleteAll(ctx, userID, libraryID, deletions)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.uploadAll(ctx, userID, libraryID, uploads)
	if err != nil {
		return nil, err
	}

	lib, err := s.catalog.AdjustStorageUsed(ctx, libraryID, uploaded-freed)
	if err != nil {
		return nil, err
	}

	summary := s.summary(lib, len(uploads), len(deletions), uploaded, freed)
	s.log.Info(ctx, "library pushed",
		"library_id", libraryID, "uploaded", summary.FilesUploaded, "deleted", summary.FilesDeleted,
		"net_bytes", uploaded-freed)
	return summary, nil
}

// Overwrite replaces the private branch with files and resets the usage
// counter to their exact total.
func (s *LibraryService) Overwrite(ctx context.Context, userID, libraryID string, files []models.FileUpload) (*models.SyncSummary, error) {
	uploads, err := s.validateUploads(files)
	if err != nil {
		return nil, err
	}

	lib, err := s.owned(ctx, userID, libraryID)
	if err != nil {
		return nil, err
	}

	total := models.SyncBatch{Uploads: uploads}.TotalUploadBytes()
	if err := s.quota.CheckStorageLimit(ctx, userID, total); err != nil {
		return nil, err
	}

	prefix := s.layout.BranchPrefix(userID, libraryID, storage.BranchPrivate)
	existing, err := s.store.ListAll(ctx, prefix)
	if err != nil {
		return nil, &common.SyncFailedError{Op: "clear", Err: err}
	}
	var freed int64
	for _, o := range existing {
		freed += o.Size
	}
	if _, err := s.store.DeletePrefix(ctx, prefix); err != nil {
		return nil, &common.SyncFailedError{Op: "clear", Err: err}
	}
	if err := s.store.Put(ctx, s.layout.MarkerKey(prefix), strings.NewReader(""), 0, "application/octet-stream"); err != nil {
		return nil, &common.SyncFailedError{Op: "marker", Err: err}
	}

	uploaded, err := s.uploadAll(ctx, userID, libraryID, uploads)
	if err != nil {
		return nil, err
	}

	updated, err := s.catalog.SetStorageUsed(ctx, libraryID, uploaded)
	if err != nil {
		return nil, err
	}

	if lib.StorageUsedBytes != uploaded {
		s.log.Debug(ctx, "usage reconciled", "library_id", libraryID, "previous", lib.StorageUsedBytes, "exact", uploaded)
	}

	summary := s.summary(updated, len(uploads), len(existing), uploaded, freed)
	s.log.Info(ctx, "library overwritten", "library_id", libraryID, "files", len(uploads), "bytes", uploaded)
	return summary, nil
}

// Pull streams the private branch as a zip. Closing the stream, or
// cancelling ctx, stops the in-flight object reads.
func (s *LibraryService) Pull(ctx context.Context, userID, libraryID string) (io.ReadCloser, *models.Library, error) {
	lib, err := s.owned(ctx, userID, libraryID)
	if err != nil {
		return nil, nil, err
	}
	prefix := s.layout.BranchPrefix(userID, libraryID, storage.BranchPrivate)
	return s.store.ArchiveStream(ctx, prefix), lib, nil
}

// deleteAll removes private branch objects concurrently and returns the bytes
// freed. Missing objects count as zero. A failed size lookup is tolerated
// and also counts as zero; Overwrite corrects the drift.
func (s *LibraryService) deleteAll(ctx context.Context, userID, libraryID string, rels []string) (int64, error) {
	var freed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for _, rel := range rels {
		g.Go(func() error {
			key, err := s.layout.ObjectKey(userID, libraryID, storage.BranchPrivate, rel)
			if err != nil {
				return err
			}

			info, err := s.store.Stat(gctx, key)
			switch {
			case errors.Is(err, common.ErrorNotFound):
				return nil
			case err != nil:
				s.log.Warn(gctx, "size unknown, counting freed bytes as zero", "key", key, "error", err)
			default:
				freed.Add(info.Size)
			}

			if err := s.store.Delete(gctx, key); err != nil {
				return &common.SyncFailedError{Op: "delete", Path: rel, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return freed.Load(), nil
}

// uploadAll streams uploads concurrently. The first failure cancels the
// rest.
func (s *LibraryService) uploadAll(ctx context.Context, userID, libraryID string, uploads []models.FileUpload) (int64, error) {
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for _, u := range uploads {
		g.Go(func() error {
			key, err := s.layout.ObjectKey(userID, libraryID, storage.BranchPrivate, u.RelativePath)
			if err != nil {
				return err
			}

			body, err := u.Open()
			if err != nil {
				return &common.SyncFailedError{Op: "upload", Path: u.RelativePath, Err: err}
			}
			defer body.Close()

			if err := s.store.Put(gctx, key, body, u.Size, u.ContentType); err != nil {
				return &common.SyncFailedError{Op: "upload", Path: u.RelativePath, Err: err}
			}
			total.Add(u.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}

func (s *LibraryService) summary(lib *models.Library, uploaded, deleted int, uploadedBytes, freedBytes int64) *models.SyncSummary {
	return &models.SyncSummary{
		LibraryID:        lib.ID,
		FilesUploaded:    uploaded,
		FilesDeleted:     deleted,
		UploadedBytes:    uploadedBytes,
		FreedBytes:       freedBytes,
		StorageUsedBytes: lib.StorageUsedBytes,
		StorageUsed:      humanize.IBytes(uint64(lib.StorageUsedBytes)),
		Version:          lib.Version,
		SyncedAt:         s.now().UTC(),
	}
}
