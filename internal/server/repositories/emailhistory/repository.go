package emailhistory

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository is the append-only email change log.
type Repository interface {
	Append(ctx context.Context, h *models.EmailHistory) (*models.EmailHistory, error)
	ListByUser(ctx context.Context, userID string) ([]*models.EmailHistory, error)
}
