// Package subscriptions is the store of active subscriptions.
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/google/uuid"
)

const subscriptionColumns = `id, user_id, name, price, category, billing_cycle, start_date,
		 next_payment_date, description, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanSubscription(s dbx.Scanner) (*models.Subscription, error) {
	var (
		sub   models.Subscription
		cycle string
	)
	err := s.Scan(&sub.ID, &sub.UserID, &sub.Name, &sub.Price, &sub.Category, &cycle,
		&sub.StartDate, &sub.NextPaymentDate, &sub.Description, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.BillingCycle = models.BillingCycle(cycle)
	return &sub, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// ListByOwner returns the owner's subscriptions ordered by creation time.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Subscription, error) {
	return r.query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY created_at, id`, ownerID)
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND user_id = $2`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Subscription) (*models.Subscription, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO subscriptions (id, user_id, name, price, category, billing_cycle, start_date, next_payment_date, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.UserID, s.Name, s.Price, s.Category, string(s.BillingCycle),
		s.StartDate, s.NextPaymentDate, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

// Update rewrites every mutable field of an owned subscription.
func (r *PostgresRepository) Update(ctx context.Context, s *models.Subscription) (*models.Subscription, error) {
	query :=
		`UPDATE subscriptions
		 SET name = $3, price = $4, category = $5, billing_cycle = $6, start_date = $7,
		     next_payment_date = $8, description = $9, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query,
		s.ID, s.UserID, s.Name, s.Price, s.Category, string(s.BillingCycle),
		s.StartDate, s.NextPaymentDate, s.Description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

// Delete removes one owned subscription and returns the number of rows removed.
func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteByIDs removes the listed owned subscriptions and returns the number of
// rows removed. Ids that no longer exist are ignored.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND id = ANY($2)`, ownerID, ids)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteAllByOwner removes every subscription of the owner and returns the
// removed rows.
func (r *PostgresRepository) DeleteAllByOwner(ctx context.Context, ownerID string) ([]*models.Subscription, error) {
	return r.query(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1
		 RETURNING `+subscriptionColumns, ownerID)
}
