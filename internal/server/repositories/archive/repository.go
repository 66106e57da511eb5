package archive

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository is the append-only deletion archive. It has no update or delete.
type Repository interface {
	InsertDeletedUser(ctx context.Context, d *models.DeletedUser) (*models.DeletedUser, error)
	InsertDeletedSubscription(ctx context.Context, d *models.DeletedSubscription) (*models.DeletedSubscription, error)
	ListDeletedSubscriptions(ctx context.Context, userID string) ([]*models.DeletedSubscription, error)
	ListDeletedUsers(ctx context.Context, originalUserID string) ([]*models.DeletedUser, error)
}
