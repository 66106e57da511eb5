// Package registry persists the denormalized per-user registry. List and map
// fields are stored as jsonb.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode registry field: %w", err)
	}
	return string(b), nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserRegistry, error) {
	query :=
		`SELECT user_id, display_name, current_email, emails, subscriptions, total_monthly_spend,
		   account_created_at, last_active, last_updated, metadata
		 FROM user_registry
		 WHERE user_id = $1`

	var (
		reg                    models.UserRegistry
		emails, subs, metadata []byte
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&reg.UserID, &reg.DisplayName, &reg.CurrentEmail,
		&emails, &subs, &reg.TotalMonthlySpend, &reg.AccountCreatedAt, &reg.LastActive, &reg.LastUpdated, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(emails, &reg.Emails); err != nil {
		return nil, fmt.Errorf("decode emails: %w", err)
	}
	if err := json.Unmarshal(subs, &reg.Subscriptions); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &reg.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &reg, nil
}

// Upsert writes the whole aggregate, creating the row if needed.
func (r *PostgresRepository) Upsert(ctx context.Context, reg *models.UserRegistry) error {
	emails, err := toJSON(nonNilEmails(reg.Emails))
	if err != nil {
		return err
	}
	subs, err := toJSON(nonNilSummaries(reg.Subscriptions))
	if err != nil {
		return err
	}
	meta := reg.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err := toJSON(meta)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO user_registry (user_id, display_name, current_email, emails, subscriptions,
		   total_monthly_spend, account_created_at, last_active, last_updated, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   current_email = EXCLUDED.current_email,
		   emails = EXCLUDED.emails,
		   subscriptions = EXCLUDED.subscriptions,
		   total_monthly_spend = EXCLUDED.total_monthly_spend,
		   last_active = EXCLUDED.last_active,
		   last_updated = EXCLUDED.last_updated,
		   metadata = EXCLUDED.metadata`

	_, err = r.db.ExecContext(ctx, query, reg.UserID, reg.DisplayName, reg.CurrentEmail, emails, subs,
		reg.TotalMonthlySpend, reg.AccountCreatedAt, reg.LastActive, reg.LastUpdated, metadata)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ReplaceSubscriptions swaps the summary list and total wholesale. A missing
// row yields common.ErrorNotFound so the caller can backfill.
func (r *PostgresRepository) ReplaceSubscriptions(ctx context.Context, userID, displayName, currentEmail string,
	subs []models.SubscriptionSummary, total decimal.Decimal, at time.Time) error {

	encoded, err := toJSON(nonNilSummaries(subs))
	if err != nil {
		return err
	}

	return r.exec(ctx,
		`UPDATE user_registry
		 SET display_name = $2, current_email = $3, subscriptions = $4, total_monthly_spend = $5, last_updated = $6
		 WHERE user_id = $1`,
		userID, displayName, currentEmail, encoded, total, at)
}

func (r *PostgresRepository) UpdateEmails(ctx context.Context, userID, currentEmail string, emails []models.EmailEntry, at time.Time) error {
	encoded, err := toJSON(nonNilEmails(emails))
	if err != nil {
		return err
	}

	return r.exec(ctx,
		`UPDATE user_registry SET current_email = $2, emails = $3, last_updated = $4 WHERE user_id = $1`,
		userID, currentEmail, encoded, at)
}

func (r *PostgresRepository) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	return r.exec(ctx, `UPDATE user_registry SET last_active = $2 WHERE user_id = $1`, userID, at)
}

// Delete is idempotent: removing a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_registry WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func nonNilEmails(e []models.EmailEntry) []models.EmailEntry {
	if e == nil {
		return []models.EmailEntry{}
	}
	return e
}

func nonNilSummaries(s []models.SubscriptionSummary) []models.SubscriptionSummary {
	if s == nil {
		return []models.SubscriptionSummary{}
	}
	return s
}
