package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
)

const maxLibraryNameLen = 255

// LibraryService is the library synchronization engine. It combines the
// object store, the catalog and the quota policy, and owns the ordering of
// their writes when one of them fails.
type LibraryService struct {
	catalog   LibraryCatalog
	quota     *QuotaPolicy
	store     storage.ObjectStore
	layout    storage.Layout
	signer    *SignedAccessIssuer
	documents DocumentCatalog

	maxParallel int
	now         func() time.Time
	log         logging.Logger
}

// LibraryServiceDeps collects the collaborators of a LibraryService.
type LibraryServiceDeps struct {
	Catalog   LibraryCatalog
	Quota     *QuotaPolicy
	Store     storage.ObjectStore
	Layout    storage.Layout
	Signer    *SignedAccessIssuer
	Documents DocumentCatalog
	// MaxParallel bounds concurrent object store calls within one request.
	MaxParallel int
	Log         logging.Logger
}

// NewLibraryService builds the service. MaxParallel defaults to 16.
func NewLibraryService(d LibraryServiceDeps) *LibraryService {
	if d.MaxParallel <= 0 {
		d.MaxParallel = 16
	}
	return &LibraryService{
		catalog:     d.Catalog,
		quota:       d.Quota,
		store:       d.Store,
		layout:      d.Layout,
		signer:      d.Signer,
		documents:   d.Documents,
		maxParallel: d.MaxParallel,
		now:         time.Now,
		log:         d.Log,
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", common.ErrInvalidName)
	}
	if len(name) > maxLibraryNameLen {
		return "", fmt.Errorf("%w: name is longer than %d bytes", common.ErrInvalidName, maxLibraryNameLen)
	}
	return name, nil
}

// owned loads a live library and hides libraries of other users.
func (s *LibraryService) owned(ctx context.Context, userID, libraryID string) (*models.Library, error) {
	lib, err := s.catalog.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if lib.OwnerID != userID {
		return nil, common.ErrorNotFound
	}
	return lib, nil
}

// CreateLibrary registers a library and prepares its private branch.
func (s *LibraryService) CreateLibrary(ctx context.Context, userID, name string) (*models.Library, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckLibraryLimit(ctx, userID); err != nil {
		return nil, err
	}

	lib, err := s.catalog.Create(ctx, userID, name)
	if err != nil {
		return nil, err
	}

	prefix := s.layout.LibraryPrefix(userID, lib.ID)
	taken, err := s.store.HasPrefix(ctx, prefix)
	if err == nil && taken {
		err = fmt.Errorf("%w: %s", common.ErrPrefixConflict, prefix)
	}
	if err == nil {
		marker := s.layout.MarkerKey(s.layout.BranchPrefix(userID, lib.ID, storage.BranchPrivate))
		err = s.store.Put(ctx, marker, strings.NewReader(""), 0, "application/octet-stream")
	}
	if err != nil {
		if derr := s.catalog.Discard(ctx, lib.ID); derr != nil {
			s.log.Error(ctx, "discard of unusable library failed", "library_id", lib.ID, "error", derr)
		}
		return nil, err
	}

	s.log.Info(ctx, "library created", "library_id", lib.ID, "owner_id", userID)
	return lib, nil
}

// ListLibraries returns the caller's live libraries, newest first. It never
// returns nil.
func (s *LibraryService) ListLibraries(ctx context.Context, userID string) ([]*models.Library, error) {
	libs, err := s.catalog.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if libs == nil {
		libs = []*models.Library{}
	}
	return libs, nil
}

// GetLibrary returns the library when the caller owns it. Libraries of
// other users are reported as common.ErrorNotFound.
func (s *LibraryService) GetLibrary(ctx context.Context, userID, libraryID string) (*models.Library, error) {
	return s.owned(ctx, userID, libraryID)
}

// RenameLibrary fails with common.ErrVersionConflict when expectedVersion is
// stale; callers re-read and retry.
func (s *LibraryService) RenameLibrary(ctx context.Context, userID, libraryID, newName string, expectedVersion int64) (*models.Library, error) {
	newName, err := cleanName(newName)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}
	return s.catalog.Rename(ctx, libraryID, newName, expectedVersion)
}

// LinkLibrary attaches a client to the library and returns a fresh sync token.
func (s *LibraryService) LinkLibrary(ctx context.Context, userID, libraryID string) (*models.Library, error) {
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}
	return s.catalog.Link(ctx, libraryID, s.now().UTC())
}

// DeleteLibrary soft-deletes the catalog side first. Object removal only
// starts once that has committed; if it fails the library stays deleted, the
// sweeper finishes the job and common.ErrCleanupPending is returned.
func (s *LibraryService) DeleteLibrary(ctx context.Context, userID, libraryID string) error {
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return err
	}

	if err := s.catalog.SoftDeleteCascade(ctx, libraryID); err != nil {
		return err
	}

	prefix := s.layout.LibraryPrefix(userID, libraryID)
	n, err := s.store.DeletePrefix(ctx, prefix)
	if err != nil {
		s.log.Error(ctx, "library deleted but objects remain",
			"library_id", libraryID, "prefix", prefix, "removed", n, "error", err)
		return fmt.Errorf("%w: %v", common.ErrCleanupPending, err)
	}

	if err := s.catalog.MarkPurged(ctx, libraryID); err != nil {
		s.log.Warn(ctx, "objects removed but purge not recorded", "library_id", libraryID, "error", err)
	}

	s.log.Info(ctx, "library deleted", "library_id", libraryID, "objects_removed", n)
	return nil
}

// Publish copies a private file to the published branch and records it as a
// document. A failed catalog write leaves the copied file in place.
func (s *LibraryService) Publish(ctx context.Context, userID, libraryID, relativePath string, meta models.PublishMetadata) (*models.PublishResult, error) {
	rel, err := storage.CleanRelativePath(relativePath)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}

	if _, err := s.signer.Issue(ctx, userID, libraryID, storage.BranchPrivate, rel); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %s", common.ErrPushFirst, rel)
		}
		return nil, err
	}

	src, _ := s.layout.ObjectKey(userID, libraryID, storage.BranchPrivate, rel)
	dst, _ := s.layout.ObjectKey(userID, libraryID, storage.BranchPublished, rel)
	if err := s.store.Copy(ctx, src, dst); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %s", common.ErrPushFirst, rel)
		}
		return nil, err
	}

	docID, err := s.documents.UpsertPublishedDocument(ctx, userID, libraryID, rel, meta)
	if err != nil {
		s.log.Error(ctx, "published file has no document record",
			"library_id", libraryID, "path", rel, "error", err)
		return nil, err
	}

	s.log.Info(ctx, "file published", "library_id", libraryID, "path", rel, "document_id", docID)
	return &models.PublishResult{
		DocumentID:    docID,
		LibraryID:     libraryID,
		PublishedPath: rel,
		PublishedAt:   s.now().UTC(),
	}, nil
}

// FileTree lists one level of a branch. Directories come first.
func (s *LibraryService) FileTree(ctx context.Context, userID, libraryID string, branch storage.Branch, dir string) ([]models.TreeNode, error) {
	prefix, err := s.layout.DirPrefix(userID, libraryID, branch, dir)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListTree(ctx, prefix)
	if err != nil {
		return nil, err
	}

	root := s.layout.BranchPrefix(userID, libraryID, branch)
	nodes := make([]models.TreeNode, 0, len(entries))
	for _, e := range entries {
		rel := strings.TrimSuffix(strings.TrimPrefix(e.Key, root), "/")
		nodes = append(nodes, models.TreeNode{
			Name:         path.Base(rel),
			Path:         rel,
			IsDir:        e.IsPrefix,
			Size:         e.Size,
			LastModified: e.LastModified,
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDir != nodes[j].IsDir {
			return nodes[i].IsDir
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}

// SignedFile issues a read link for one file of an owned library.
func (s *LibraryService) SignedFile(ctx context.Context, userID, libraryID string, branch storage.Branch, relativePath string) (*models.SignedFile, error) {
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}
	return s.signer.Issue(ctx, userID, libraryID, branch, relativePath)
}

// Quota reports the caller's plan limits and current usage.
func (s *LibraryService) Quota(ctx context.Context, userID string) (models.QuotaSnapshot, error) {
	return s.quota.Snapshot(ctx, userID)
}

// Documents lists the live published documents of a library.
func (s *LibraryService) Documents(ctx context.Context, userID, libraryID string) ([]*models.Document, error) {
	if _, err := s.owned(ctx, userID, libraryID); err != nil {
		return nil, err
	}
	docs, err := s.catalog.Documents(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}
