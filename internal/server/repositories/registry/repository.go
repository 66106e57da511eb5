package registry

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

// Repository stores the per-user registry aggregate. Only the registry
// synchronizer writes through it.
type Repository interface {
	Get(ctx context.Context, userID string) (*models.UserRegistry, error)
	Upsert(ctx context.Context, r *models.UserRegistry) error
	ReplaceSubscriptions(ctx context.Context, userID, displayName, currentEmail string,
		subs []models.SubscriptionSummary, total decimal.Decimal, at time.Time) error
	UpdateEmails(ctx context.Context, userID, currentEmail string, emails []models.EmailEntry, at time.Time) error
	TouchActivity(ctx context.Context, userID string, at time.Time) error
	Delete(ctx context.Context, userID string) error
}
