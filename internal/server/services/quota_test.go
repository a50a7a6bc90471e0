package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsage struct {
	libraries, bytes int64
	err              error
}

func (f fakeUsage) Usage(ctx context.Context, ownerID string) (int64, int64, error) {
	return f.libraries, f.bytes, f.err
}

func TestCheckLibraryLimit(t *testing.T) {
	tests := []struct {
		name    string
		plan    *models.Plan
		count   int64
		wantErr bool
	}{
		{name: "below", plan: &models.Plan{Name: "PLUS", LibraryLimit: limit(5)}, count: 4},
		{name: "at limit", plan: &models.Plan{Name: "FREE", LibraryLimit: limit(1)}, count: 1, wantErr: true},
		{name: "overshoot from a race", plan: &models.Plan{Name: "FREE", LibraryLimit: limit(1)}, count: 2, wantErr: true},
		{name: "unlimited", plan: &models.Plan{Name: "PRO"}, count: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuotaPolicy(staticPlans{plan: tt.plan}, fakeUsage{libraries: tt.count}, mib, mib)
			err := q.CheckLibraryLimit(context.Background(), "u1")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var le *common.LimitExceededError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, common.ResourceLibraries, le.Resource)
			assert.Equal(t, tt.count, le.Current)
			assert.Equal(t, *tt.plan.LibraryLimit, le.Limit)
			assert.Contains(t, err.Error(), tt.plan.Name)
		})
	}
}

func TestCheckStorageLimit_ShortfallInMessage(t *testing.T) {
	q := NewQuotaPolicy(staticPlans{plan: freePlan()}, fakeUsage{bytes: 499 * mib}, mib, mib)

	require.NoError(t, q.CheckStorageLimit(context.Background(), "u1", mib))

	err := q.CheckStorageLimit(context.Background(), "u1", 2*mib)
	var le *common.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, mib, le.Shortfall)
	assert.Equal(t, "storage limit exceeded on plan FREE: used 499 MiB of 500 MiB, upload needs 2.0 MiB, short by 1.0 MiB", err.Error())
}

func TestCheckStorageLimit_Boundary(t *testing.T) {
	q := NewQuotaPolicy(staticPlans{plan: &models.Plan{Name: "T", StorageLimitBytes: 100}}, fakeUsage{bytes: 90}, 100, 100)

	assert.NoError(t, q.CheckStorageLimit(context.Background(), "u1", 10), "exactly at the limit fits")

	err := q.CheckStorageLimit(context.Background(), "u1", 11)
	var le *common.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, int64(90), le.Current)
	assert.Equal(t, int64(1), le.Shortfall)
}

func TestSnapshot_Errors(t *testing.T) {
	q := NewQuotaPolicy(staticPlans{err: errors.New("plans down")}, fakeUsage{}, 1, 1)
	_, err := q.Snapshot(context.Background(), "u1")
	assert.EqualError(t, err, "plans down")

	q = NewQuotaPolicy(staticPlans{plan: freePlan()}, fakeUsage{err: errors.New("usage down")}, 1, 1)
	err = q.CheckStorageLimit(context.Background(), "u1", 1)
	assert.EqualError(t, err, "usage down")
}

func TestCheckFileAndBatchSize(t *testing.T) {
	q := NewQuotaPolicy(nil, nil, 10, 25)

	assert.NoError(t, q.CheckFileSize([]models.FileUpload{{RelativePath: "a", Size: 10}}))
	assert.ErrorIs(t, q.CheckFileSize([]models.FileUpload{{RelativePath: "a", Size: 11}}), common.ErrOversizedInput)

	assert.NoError(t, q.CheckBatchSize([]models.FileUpload{{Size: 10}, {Size: 10}, {Size: 5}}))
	err := q.CheckBatchSize([]models.FileUpload{{Size: 10}, {Size: 10}, {Size: 6}})
	var oe *common.OversizedInputError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, int64(26), oe.Size)
	assert.Equal(t, int64(25), oe.Max)
}

type fakePlanRepo struct {
	plans.Repository

	userPlan *models.Plan
	userErr  error
	named    map[string]*models.Plan
}

func (f *fakePlanRepo) GetForUser(ctx context.Context, userID string) (*models.Plan, error) {
	return f.userPlan, f.userErr
}

func (f *fakePlanRepo) Get(ctx context.Context, name string) (*models.Plan, error) {
	if p, ok := f.named[name]; ok {
		return p, nil
	}
	return nil, common.ErrorNotFound
}

func TestPlanLookup(t *testing.T) {
	db, _ := newMockDB(t)
	ctx := context.Background()

	subscribed := &fakePlanRepo{userPlan: &models.Plan{Name: "PLUS"}}
	p, err := NewPlanLookup(db, &fakeRepoManager{plans: subscribed}, "FREE").PlanFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "PLUS", p.Name)

	fallback := &fakePlanRepo{userErr: common.ErrorNotFound, named: map[string]*models.Plan{"FREE": freePlan()}}
	p, err = NewPlanLookup(db, &fakeRepoManager{plans: fallback}, "FREE").PlanFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "FREE", p.Name)

	_, err = NewPlanLookup(db, &fakeRepoManager{plans: fallback}, "GOLD").PlanFor(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, err.Error(), "default plan GOLD")

	broken := &fakePlanRepo{userErr: errors.New("db error: down")}
	_, err = NewPlanLookup(db, &fakeRepoManager{plans: broken}, "FREE").PlanFor(ctx, "u1")
	assert.EqualError(t, err, "db error: down")
}
