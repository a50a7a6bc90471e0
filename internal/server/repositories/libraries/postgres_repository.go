package libraries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/dbx"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	// Returned for ids that are not valid UUIDs.
	invalidTextRepresentation = "22P02"
)

const libraryColumns = `id, owner_id, name, storage_used_bytes, version, linked_at, created_at, updated_at, deleted_at, purged_at`

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository returns a repository bound to db, which may be a
// pool or a transaction.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibrary(row rowScanner) (*models.Library, error) {
	lib := &models.Library{}
	err := row.Scan(&lib.ID, &lib.OwnerID, &lib.Name, &lib.StorageUsedBytes, &lib.Version,
		&lib.LinkedAt, &lib.CreatedAt, &lib.UpdatedAt, &lib.DeletedAt, &lib.PurgedAt)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

func mapWriteErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return common.ErrDuplicateName
		case invalidTextRepresentation:
			return common.ErrorNotFound
		}
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, lib *models.Library) (*models.Library, error) {
	query :=
		`INSERT INTO libraries (id, owner_id, name)
		 VALUES ($1, $2, $3)
		 RETURNING ` + libraryColumns

	created, err := scanLibrary(r.db.QueryRowContext(ctx, query, lib.ID, lib.OwnerID, lib.Name))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries WHERE id = $1 AND deleted_at IS NULL`

	lib, err := scanLibrary(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return lib, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Library, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select libraries: %w", err)
	}
	defer rows.Close()

	var result []*models.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Rename is conditioned on both id and version. When nothing matches, a
// second lookup tells a missing library apart from a stale version.
func (r *PostgresRepository) Rename(ctx context.Context, id, name string, expectedVersion int64) (*models.Library, error) {
	query :=
		`UPDATE libraries SET name = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $3 AND deleted_at IS NULL
		 RETURNING ` + libraryColumns

	lib, err := scanLibrary(r.db.QueryRowContext(ctx, query, id, name, expectedVersion))
	if err == nil {
		return lib, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapWriteErr(err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, common.ErrVersionConflict
}

func (r *PostgresRepository) Link(ctx context.Context, id string, at time.Time) (*models.Library, error) {
	query :=
		`UPDATE libraries SET linked_at = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING ` + libraryColumns

	lib, err := scanLibrary(r.db.QueryRowContext(ctx, query, id, at))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return lib, nil
}

// AdjustStorageUsed applies delta to the usage counter, clamping at zero.
func (r *PostgresRepository) AdjustStorageUsed(ctx context.Context, id string, delta int64) (*models.Library, error) {
	query :=
		`UPDATE libraries SET storage_used_bytes = GREATEST(storage_used_bytes + $2, 0),
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING ` + libraryColumns

	lib, err := scanLibrary(r.db.QueryRowContext(ctx, query, id, delta))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return lib, nil
}

func (r *PostgresRepository) SetStorageUsed(ctx context.Context, id string, bytes int64) (*models.Library, error) {
	query :=
		`UPDATE libraries SET storage_used_bytes = GREATEST($2, 0),
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING ` + libraryColumns

	lib, err := scanLibrary(r.db.QueryRowContext(ctx, query, id, bytes))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return lib, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE libraries SET deleted_at = NOW(), version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
}

// Discard removes a record outright. Only used to undo a create that never
// became visible.
func (r *PostgresRepository) Discard(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM libraries WHERE id = $1`, id)
}

func (r *PostgresRepository) MarkPurged(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE libraries SET purged_at = NOW()
		 WHERE id = $1 AND deleted_at IS NOT NULL AND purged_at IS NULL`, id)
}

// MarkPurgeAttempted stamps a failed purge so the library moves behind
// those not yet tried.
func (r *PostgresRepository) MarkPurgeAttempted(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE libraries SET purge_attempted_at = NOW()
		 WHERE id = $1 AND deleted_at IS NOT NULL AND purged_at IS NULL`, id)
}

// ListPendingPurge returns never-attempted libraries first, then those whose
// last attempt is oldest.
func (r *PostgresRepository) ListPendingPurge(ctx context.Context, limit int) ([]*models.Library, error) {
	query := `SELECT ` + libraryColumns + ` FROM libraries
		WHERE deleted_at IS NOT NULL AND purged_at IS NULL
		ORDER BY purge_attempted_at NULLS FIRST, deleted_at
		LIMIT $1`

	return r.list(ctx, query, limit)
}

func (r *PostgresRepository) CountLive(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM libraries WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) StorageUsed(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(storage_used_bytes), 0) FROM libraries WHERE owner_id = $1 AND deleted_at IS NULL`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
