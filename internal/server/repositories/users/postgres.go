// Package users is the account store: the single source of truth for user
// identity, credentials and preferences.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, name, email, password_hash, bio, reset_token, reset_token_expiry,
		 payment_reminders, reminder_frequency, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(s dbx.Scanner) (*models.User, error) {
	var (
		u      models.User
		token  sql.NullString
		expiry sql.NullTime
		freq   string
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Bio, &token, &expiry,
		&u.Preferences.PaymentReminders, &freq, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Preferences.ReminderFrequency = models.ReminderFrequency(freq)
	if token.Valid {
		u.ResetToken = &token.String
	}
	if expiry.Valid {
		u.ResetTokenExpiry = &expiry.Time
	}
	return &u, nil
}

func wrap(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if dbx.IsUniqueViolation(err) {
		return common.ErrorConflict
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a user whose PasswordHash is already set. A duplicate email
// yields common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO users (id, name, email, password_hash, bio, payment_reminders, reminder_frequency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Bio,
		user.Preferences.PaymentReminders, string(user.Preferences.ReminderFrequency),
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, wrap(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// EmailTakenByOther reports whether email belongs to a user other than userID.
func (r *PostgresRepository) EmailTakenByOther(ctx context.Context, email, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`

	var taken bool
	if err := r.db.QueryRowContext(ctx, query, email, userID).Scan(&taken); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return taken, nil
}

// UpdateProfile writes name, bio and notification preferences.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`UPDATE users SET name = $2, bio = $3, payment_reminders = $4, reminder_frequency = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Bio,
		user.Preferences.PaymentReminders, string(user.Preferences.ReminderFrequency)))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(err)
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

func (r *PostgresRepository) UpdateEmail(ctx context.Context, userID, email string) error {
	return r.exec(ctx, `UPDATE users SET email = $2, updated_at = now() WHERE id = $1`, userID, email)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash)
}

// SetResetToken stores a reset token and its expiry, replacing any earlier one.
func (r *PostgresRepository) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	return r.exec(ctx, `UPDATE users SET reset_token = $2, reset_token_expiry = $3 WHERE id = $1`, userID, token, expiry)
}

// FindByResetToken matches email, exact token and an expiry after now in one
// query, so a wrong email and a wrong token are indistinguishable.
func (r *PostgresRepository) FindByResetToken(ctx context.Context, email, token string, now time.Time) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE lower(email) = lower($1) AND reset_token = $2 AND reset_token_expiry > $3`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, email, token, now))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// ConsumeResetToken sets the new hash and clears both token fields in a single
// statement, guarded by the same match as FindByResetToken. A replayed or
// expired token matches no row and yields common.ErrorNotFound.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, email, token, hash string, now time.Time) (*models.User, error) {
	query :=
		`UPDATE users SET password_hash = $4, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		 WHERE lower(email) = lower($1) AND reset_token = $2 AND reset_token_expiry > $3
		 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, email, token, now, hash))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}

// Delete hard-deletes the user and returns the row as it existed.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) (*models.User, error) {
	query := `DELETE FROM users WHERE id = $1 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, wrap(err)
	}
	return u, nil
}
