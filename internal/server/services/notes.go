package services

import (
	"context"
	"database/sql"
	"path"
	"strings"

	"github.com/dmitrijs2005/libsync/internal/dbx"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// DocumentCatalog records published files as documents.
type DocumentCatalog interface {
	UpsertPublishedDocument(ctx context.Context, ownerID, libraryID, publishedPath string, meta models.PublishMetadata) (string, error)
}

// NoteCatalog is the Postgres-backed DocumentCatalog.
type NoteCatalog struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	newID       func() string
}

var _ DocumentCatalog = (*NoteCatalog)(nil)

// NewNoteCatalog returns a DocumentCatalog backed by the documents repository.
func NewNoteCatalog(db *sql.DB, m repomanager.RepositoryManager) *NoteCatalog {
	return &NoteCatalog{db: db, repomanager: m, newID: uuid.NewString}
}

// TitleFromPath derives a document title from a file name: "notes/my-doc.md"
// becomes "my-doc".
func TitleFromPath(p string) string {
	base := path.Base(p)
	if t := strings.TrimSuffix(base, path.Ext(base)); t != "" {
		return t
	}
	return base
}

// UpsertPublishedDocument is idempotent per (owner, library, path). Tags are
// replaced only when meta.Tags is non-nil.
func (n *NoteCatalog) UpsertPublishedDocument(ctx context.Context, ownerID, libraryID, publishedPath string, meta models.PublishMetadata) (string, error) {
	title := strings.TrimSpace(meta.Title)
	fallback := TitleFromPath(publishedPath)

	s := slug.Make(title)
	if title == "" {
		s = slug.Make(fallback)
	}

	var id string
	err := dbx.WithTx(ctx, n.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := n.repomanager.Documents(tx)

		doc, err := repo.Upsert(ctx, documents.UpsertParams{
			ID:            n.newID(),
			OwnerID:       ownerID,
			LibraryID:     libraryID,
			PublishedPath: publishedPath,
			Title:         title,
			FallbackTitle: fallback,
			Description:   meta.Description,
			Slug:          s,
		})
		if err != nil {
			return err
		}
		id = doc.ID

		if meta.Tags != nil {
			return repo.ReplaceTags(ctx, doc.ID, normalizeTags(meta.Tags))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
