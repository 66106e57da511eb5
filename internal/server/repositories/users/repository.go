package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository is the account store.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailTakenByOther(ctx context.Context, email, userID string) (bool, error)
	UpdateProfile(ctx context.Context, user *models.User) (*models.User, error)
	UpdateEmail(ctx context.Context, userID, email string) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error
	FindByResetToken(ctx context.Context, email, token string, now time.Time) (*models.User, error)
	ConsumeResetToken(ctx context.Context, email, token, hash string, now time.Time) (*models.User, error)
	Delete(ctx context.Context, userID string) (*models.User, error)
}
