package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/repomanager"
)

// PlanSource resolves the plan a user is on.
type PlanSource interface {
	PlanFor(ctx context.Context, userID string) (*models.Plan, error)
}

// UsageSource reports what a user currently consumes.
type UsageSource interface {
	Usage(ctx context.Context, ownerID string) (libraries int64, storageBytes int64, err error)
}

// PlanLookup reads plans from the catalog database. Users without a
// subscription row are on the default plan.
type PlanLookup struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	defaultPlan string
}

// NewPlanLookup resolves plans from the database, using defaultPlan for users
// without a subscription row.
func NewPlanLookup(db *sql.DB, m repomanager.RepositoryManager, defaultPlan string) *PlanLookup {
	return &PlanLookup{db: db, repomanager: m, defaultPlan: defaultPlan}
}

// PlanFor returns the user's plan, or the default plan when none is assigned.
func (p *PlanLookup) PlanFor(ctx context.Context, userID string) (*models.Plan, error) {
	repo := p.repomanager.Plans(p.db)

	plan, err := repo.GetForUser(ctx, userID)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	plan, err = repo.Get(ctx, p.defaultPlan)
	if err != nil {
		return nil, fmt.Errorf("default plan %s: %w", p.defaultPlan, err)
	}
	return plan, nil
}

// QuotaPolicy compares plan limits with current usage. Nothing is cached:
// every check reads the plan and the usage afresh.
type QuotaPolicy struct {
	plans        PlanSource
	usage        UsageSource
	maxFileSize  int64
	maxBatchSize int64
}

// NewQuotaPolicy returns a policy with per-file and per-batch byte caps.
func NewQuotaPolicy(plans PlanSource, usage UsageSource, maxFileSize, maxBatchSize int64) *QuotaPolicy {
	return &QuotaPolicy{
		plans:        plans,
		usage:        usage,
		maxFileSize:  maxFileSize,
		maxBatchSize: maxBatchSize,
	}
}

// Snapshot reads the user's plan and current usage.
func (q *QuotaPolicy) Snapshot(ctx context.Context, userID string) (models.QuotaSnapshot, error) {
	plan, err := q.plans.PlanFor(ctx, userID)
	if err != nil {
		return models.QuotaSnapshot{}, err
	}
	count, used, err := q.usage.Usage(ctx, userID)
	if err != nil {
		return models.QuotaSnapshot{}, err
	}
	return models.QuotaSnapshot{
		PlanName:                plan.Name,
		LibraryLimit:            plan.LibraryLimit,
		StorageLimitBytes:       plan.StorageLimitBytes,
		CurrentLibraryCount:     count,
		CurrentStorageUsedBytes: used,
	}, nil
}

// CheckLibraryLimit fails when one more library would not fit. Concurrent
// creates can both pass; the overshoot is tolerated.
func (q *QuotaPolicy) CheckLibraryLimit(ctx context.Context, userID string) error {
	snap, err := q.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if snap.LibraryLimit == nil {
		return nil
	}
	limit := *snap.LibraryLimit
	if snap.CurrentLibraryCount >= limit {
		return &common.LimitExceededError{
			Resource:  common.ResourceLibraries,
			Plan:      snap.PlanName,
			Current:   snap.CurrentLibraryCount,
			Limit:     limit,
			Requested: 1,
			Shortfall: snap.CurrentLibraryCount - limit + 1,
		}
	}
	return nil
}

// CheckStorageLimit fails when incoming bytes do not fit into the plan. The
// check is conservative: nothing the operation may later free is credited.
func (q *QuotaPolicy) CheckStorageLimit(ctx context.Context, userID string, incoming int64) error {
	snap, err := q.Snapshot(ctx, userID)
	if err != nil {
		return err
	}

	current := snap.CurrentStorageUsedBytes
	if over := current + incoming - snap.StorageLimitBytes; over > 0 {
		return &common.LimitExceededError{
			Resource:  common.ResourceStorage,
			Plan:      snap.PlanName,
			Current:   current,
			Limit:     snap.StorageLimitBytes,
			Requested: incoming,
			Shortfall: over,
		}
	}
	return nil
}

// CheckFileSize is a local check; it makes no network call.
func (q *QuotaPolicy) CheckFileSize(files []models.FileUpload) error {
	for _, f := range files {
		if f.Size > q.maxFileSize {
			return &common.OversizedInputError{Scope: "file", Path: f.RelativePath, Size: f.Size, Max: q.maxFileSize}
		}
	}
	return nil
}

// CheckBatchSize is a local check; it makes no network call.
func (q *QuotaPolicy) CheckBatchSize(files []models.FileUpload) error {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	if total > q.maxBatchSize {
		return &common.OversizedInputError{Scope: "batch", Size: total, Max: q.maxBatchSize}
	}
	return nil
}
