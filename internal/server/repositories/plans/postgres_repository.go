package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/libsync/internal/common"
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

func (r *PostgresRepository) GetForUser(ctx context.Context, userID string) (*models.Plan, error) {
	query :=
		`SELECT p.name, p.library_limit, p.storage_limit_bytes
		 FROM user_plans up JOIN plans p ON p.name = up.plan_name
		 WHERE up.user_id = $1`

	return r.scan(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) Get(ctx context.Context, name string) (*models.Plan, error) {
	query := `SELECT name, library_limit, storage_limit_bytes FROM plans WHERE name = $1`

	return r.scan(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresRepository) scan(row *sql.Row) (*models.Plan, error) {
	plan := &models.Plan{}
	if err := row.Scan(&plan.Name, &plan.LibraryLimit, &plan.StorageLimitBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return plan, nil
}
