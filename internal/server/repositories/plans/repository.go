package plans

import (
	"context"

	"github.com/dmitrijs2005/libsync/internal/server/models"
)

// Repository reads subscription plans.
type Repository interface {
	// GetForUser returns the plan the user is subscribed to, or
	// common.ErrorNotFound when the user has no subscription row.
	GetForUser(ctx context.Context, userID string) (*models.Plan, error)
	Get(ctx context.Context, name string) (*models.Plan, error)
}
