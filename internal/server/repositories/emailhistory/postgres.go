// Package emailhistory stores one row per committed email change.
package emailhistory

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

func (r *PostgresRepository) Append(ctx context.Context, h *models.EmailHistory) (*models.EmailHistory, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO email_history (id, user_id, previous_email, new_email, changed_at, reason, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.UserID, h.PreviousEmail, h.NewEmail, h.ChangedAt, h.Reason, h.IPAddress, h.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return h, nil
}

// ListByUser returns the user's email changes, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.EmailHistory, error) {
	query :=
		`SELECT id, user_id, previous_email, new_email, changed_at, reason, ip_address, user_agent
		 FROM email_history
		 WHERE user_id = $1
		 ORDER BY changed_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.EmailHistory, 0)
	for rows.Next() {
		var h models.EmailHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.PreviousEmail, &h.NewEmail, &h.ChangedAt,
			&h.Reason, &h.IPAddress, &h.UserAgent); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
