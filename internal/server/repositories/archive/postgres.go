// Package archive persists immutable snapshots of deleted users and
// subscriptions.
package archive

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertDeletedUser(ctx context.Context, d *models.DeletedUser) (*models.DeletedUser, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO deleted_users (id, original_user_id, name, email, bio, original_created_at,
		   deleted_at, subscription_count, total_spent, reason, deleted_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 `

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.OriginalUserID, d.Name, d.Email, d.Bio, d.OriginalCreatedAt,
		d.DeletedAt, d.SubscriptionCount, d.TotalSpent, d.Reason, string(d.DeletedBy))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return d, nil
}

func (r *PostgresRepository) InsertDeletedSubscription(ctx context.Context, d *models.DeletedSubscription) (*models.DeletedSubscription, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO deleted_subscriptions (id, user_id, original_subscription_id, name, price, category,
		   billing_cycle, start_date, next_payment_date, description, original_created_at, deleted_at,
		   deleted_by, deletion_method, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 `

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.OriginalSubscriptionID, d.Name, d.Price, d.Category,
		string(d.BillingCycle), d.StartDate, d.NextPaymentDate, d.Description, d.OriginalCreatedAt, d.DeletedAt,
		string(d.DeletedBy), string(d.DeletionMethod), d.Reason)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return d, nil
}

func (r *PostgresRepository) ListDeletedSubscriptions(ctx context.Context, userID string) ([]*models.DeletedSubscription, error) {
	query :=
		`SELECT id, user_id, original_subscription_id, name, price, category, billing_cycle, start_date,
		   next_payment_date, description, original_created_at, deleted_at, deleted_by, deletion_method, reason
		 FROM deleted_subscriptions
		 WHERE user_id = $1
		 ORDER BY deleted_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.DeletedSubscription, 0)
	for rows.Next() {
		var (
			d                    models.DeletedSubscription
			cycle, actor, method string
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.OriginalSubscriptionID, &d.Name, &d.Price, &d.Category, &cycle,
			&d.StartDate, &d.NextPaymentDate, &d.Description, &d.OriginalCreatedAt, &d.DeletedAt,
			&actor, &method, &d.Reason); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.BillingCycle = models.BillingCycle(cycle)
		d.DeletedBy = models.Actor(actor)
		d.DeletionMethod = models.DeletionMethod(method)
		result = append(result, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) ListDeletedUsers(ctx context.Context, originalUserID string) ([]*models.DeletedUser, error) {
	query :=
		`SELECT id, original_user_id, name, email, bio, original_created_at, deleted_at,
		   subscription_count, total_spent, reason, deleted_by
		 FROM deleted_users
		 WHERE original_user_id = $1
		 ORDER BY deleted_at, id`

	rows, err := r.db.QueryContext(ctx, query, originalUserID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.DeletedUser, 0)
	for rows.Next() {
		var (
			d     models.DeletedUser
			actor string
		)
		if err := rows.Scan(&d.ID, &d.OriginalUserID, &d.Name, &d.Email, &d.Bio, &d.OriginalCreatedAt,
			&d.DeletedAt, &d.SubscriptionCount, &d.TotalSpent, &d.Reason, &actor); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		d.DeletedBy = models.Actor(actor)
		result = append(result, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
