package memory

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type userRepo struct {
	s *Store
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.ResetToken != nil {
		t := *u.ResetToken
		c.ResetToken = &t
	}
	if u.ResetTokenExpiry != nil {
		e := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &e
	}
	return &c
}

func (r *userRepo) byEmail(email string) *models.User {
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (r *userRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpUserCreate); err != nil {
		return nil, err
	}
	if r.byEmail(user.Email) != nil {
		return nil, common.ErrorConflict
	}
	if user.ID == "" {
		user.ID = newID()
	}
	now := r.s.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = copyUser(user)
	return user, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) EmailTakenByOther(_ context.Context, email, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	return u != nil && u.ID != userID, nil
}

func (r *userRepo) UpdateProfile(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.Name, u.Bio, u.Preferences = user.Name, user.Bio, user.Preferences
	u.UpdatedAt = r.s.Now()
	return copyUser(u), nil
}

func (r *userRepo) UpdateEmail(_ context.Context, userID, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpUserUpdateEmail); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	if other := r.byEmail(email); other != nil && other.ID != userID {
		return common.ErrorConflict
	}
	u.Email = email
	u.UpdatedAt = r.s.Now()
	return nil
}

func (r *userRepo) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpUserUpdatePassword); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.s.Now()
	return nil
}

func (r *userRepo) SetResetToken(_ context.Context, userID, token string, expiry time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpUserSetResetToken); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (r *userRepo) matchReset(email, token string, now time.Time) *models.User {
	u := r.byEmail(email)
	if u == nil || u.ResetToken == nil || u.ResetTokenExpiry == nil {
		return nil
	}
	if *u.ResetToken != token || !u.ResetTokenExpiry.After(now) {
		return nil
	}
	return u
}

func (r *userRepo) FindByResetToken(_ context.Context, email, token string, now time.Time) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.matchReset(email, token, now)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) ConsumeResetToken(_ context.Context, email, token, hash string, now time.Time) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.matchReset(email, token, now)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	u.PasswordHash = hash
	u.ResetToken, u.ResetTokenExpiry = nil, nil
	u.UpdatedAt = r.s.Now()
	return copyUser(u), nil
}

func (r *userRepo) Delete(_ context.Context, userID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpUserDelete); err != nil {
		return nil, err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.users, userID)
	return u, nil
}

// UserCount is the number of live users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
