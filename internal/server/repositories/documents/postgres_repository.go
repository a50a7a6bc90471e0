package documents

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/libsync/internal/dbx"
	"github.com/dmitrijs2005/libsync/internal/server/models"
)

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a repository bound to db, which may be a
// pool or a transaction.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert creates the document for (owner, library, path) or updates the
// existing one in place. The id and bookmark count of an existing document
// are preserved, and a soft-deleted one is revived.
func (r *PostgresRepository) Upsert(ctx context.Context, p UpsertParams) (*models.Document, error) {
	query :=
		`INSERT INTO documents (id, owner_id, library_id, published_path, title, description, slug)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), $6), $7, $8)
		ON CONFLICT (owner_id, library_id, published_path)
		DO UPDATE SET
			title = COALESCE(NULLIF($5, ''), documents.title),
			description = COALESCE(NULLIF($7, ''), documents.description),
			slug = CASE WHEN $5 = '' THEN documents.slug ELSE EXCLUDED.slug END,
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING id, title, description, slug, bookmark_count, created_at, updated_at
		`

	doc := &models.Document{
		OwnerID:       p.OwnerID,
		LibraryID:     p.LibraryID,
		PublishedPath: p.PublishedPath,
	}
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.OwnerID, p.LibraryID, p.PublishedPath, p.Title, p.FallbackTitle, p.Description, p.Slug).
		Scan(&doc.ID, &doc.Title, &doc.Description, &doc.Slug, &doc.BookmarkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

// ReplaceTags makes tags the live tag set of the document. Tags that were
// removed earlier are revived rather than duplicated.
func (r *PostgresRepository) ReplaceTags(ctx context.Context, documentID string, tags []string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE document_tags SET deleted_at = NOW() WHERE document_id = $1 AND deleted_at IS NULL`,
		documentID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, tag := range tags {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO document_tags (document_id, tag) VALUES ($1, $2)
			ON CONFLICT (document_id, tag) DO UPDATE SET deleted_at = NULL`,
			documentID, tag)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ListByLibrary(ctx context.Context, libraryID string) ([]*models.Document, error) {
	query := `SELECT id, owner_id, library_id, published_path, title, description, slug, bookmark_count, created_at, updated_at
		FROM documents
		WHERE library_id = $1 AND deleted_at IS NULL
		ORDER BY published_path`

	rows, err := r.db.QueryContext(ctx, query, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.LibraryID, &doc.PublishedPath, &doc.Title,
			&doc.Description, &doc.Slug, &doc.BookmarkCount, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) softDelete(ctx context.Context, query, libraryID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, libraryID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// SoftDeleteTagsByLibrary must run before SoftDeleteByLibrary: it only
// reaches tags of documents that are still live.
func (r *PostgresRepository) SoftDeleteTagsByLibrary(ctx context.Context, libraryID string) (int64, error) {
	return r.softDelete(ctx,
		`UPDATE document_tags SET deleted_at = NOW()
		WHERE deleted_at IS NULL
		  AND document_id IN (SELECT id FROM documents WHERE library_id = $1 AND deleted_at IS NULL)`,
		libraryID)
}

// SoftDeleteBookmarksByLibrary has the same ordering constraint as
// SoftDeleteTagsByLibrary.
func (r *PostgresRepository) SoftDeleteBookmarksByLibrary(ctx context.Context, libraryID string) (int64, error) {
	return r.softDelete(ctx,
		`UPDATE bookmarks SET deleted_at = NOW()
		WHERE deleted_at IS NULL
		  AND document_id IN (SELECT id FROM documents WHERE library_id = $1 AND deleted_at IS NULL)`,
		libraryID)
}

func (r *PostgresRepository) SoftDeleteByLibrary(ctx context.Context, libraryID string) (int64, error) {
	return r.softDelete(ctx,
		`UPDATE documents SET deleted_at = NOW(), updated_at = NOW()
		WHERE library_id = $1 AND deleted_at IS NULL`,
		libraryID)
}
