package subscriptions

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository is the subscription store. Every operation is scoped to an owner.
type Repository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Subscription, error)
	Get(ctx context.Context, ownerID, id string) (*models.Subscription, error)
	Create(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	Update(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	Delete(ctx context.Context, ownerID, id string) (int64, error)
	DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error)
	DeleteAllByOwner(ctx context.Context, ownerID string) ([]*models.Subscription, error)
}
