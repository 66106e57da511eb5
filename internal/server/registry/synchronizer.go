// Package registry keeps the per-user registry aggregate in line with the
// account and subscription stores. The Synchronizer is the only writer of the
// registry; every write it makes is best-effort from the caller's view.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/spend"
)

type Synchronizer struct {
	store dbx.Runner
	repos repomanager.RepositoryManager
	log   logging.Logger
	now   func() time.Time
}

func NewSynchronizer(store dbx.Runner, repos repomanager.RepositoryManager, log logging.Logger) *Synchronizer {
	return &Synchronizer{
		store: store,
		repos: repos,
		log:   log.With("module", "registry"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Summarize builds the registry view of the given subscriptions, in order.
func Summarize(subs []*models.Subscription) []models.SubscriptionSummary {
	out := make([]models.SubscriptionSummary, 0, len(subs))
	for _, s := range subs {
		out = append(out, models.SubscriptionSummary{
			SubscriptionID: s.ID,
			Name:           s.Name,
			Provider:       s.Name,
			Price:          s.Price,
			BillingCycle:   s.BillingCycle,
			MonthlyCost:    spend.Monthly(s.Price, s.BillingCycle),
			AddedAt:        s.CreatedAt,
			LastUpdatedAt:  s.UpdatedAt,
			Status:         models.StatusActive,
		})
	}
	return out
}

// Resync recomputes the subscription summaries and the monthly total of
// ownerID from the live stores and replaces them wholesale. It is idempotent.
// A missing registry row is backfilled; a missing user removes the row.
func (s *Synchronizer) Resync(ctx context.Context, ownerID string) error {
	return s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		user, err := s.repos.Users(db).GetByID(ctx, ownerID)
		if errors.Is(err, common.ErrorNotFound) {
			return s.repos.Registry(db).Delete(ctx, ownerID)
		}
		if err != nil {
			return err
		}

		subs, err := s.repos.Subscriptions(db).ListByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		summaries := Summarize(subs)
		total := spend.Total(subs)
		now := s.now()

		reg := s.repos.Registry(db)
		err = reg.ReplaceSubscriptions(ctx, ownerID, user.Name, user.Email, summaries, total, now)
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		s.log.Info(ctx, "backfilling missing registry row", "user_id", ownerID)
		return reg.Upsert(ctx, &models.UserRegistry{
			UserID:       user.ID,
			DisplayName:  user.Name,
			CurrentEmail: user.Email,
			Emails: []models.EmailEntry{{
				Address:    user.Email,
				IsPrimary:  true,
				AddedAt:    user.CreatedAt,
				LastUsedAt: now,
				Source:     models.EmailSourceImport,
			}},
			Subscriptions:     summaries,
			TotalMonthlySpend: total,
			AccountCreatedAt:  user.CreatedAt,
			LastActive:        now,
			LastUpdated:       now,
		})
	})
}

// RecordSignup creates the registry row of a new user.
func (s *Synchronizer) RecordSignup(ctx context.Context, user *models.User) error {
	now := s.now()
	return s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Registry(db).Upsert(ctx, &models.UserRegistry{
			UserID:       user.ID,
			DisplayName:  user.Name,
			CurrentEmail: user.Email,
			Emails: []models.EmailEntry{{
				Address:    user.Email,
				IsPrimary:  true,
				AddedAt:    user.CreatedAt,
				LastUsedAt: user.CreatedAt,
				Source:     models.EmailSourceSignup,
			}},
			Subscriptions:     []models.SubscriptionSummary{},
			TotalMonthlySpend: spend.Total(nil),
			AccountCreatedAt:  user.CreatedAt,
			LastActive:        now,
			LastUpdated:       now,
		})
	})
}

// applyEmailChange demotes every address, stamps the previous one as last
// used at `at`, and makes next the primary, appending it when new.
func applyEmailChange(emails []models.EmailEntry, previous, next string, at time.Time) []models.EmailEntry {
	out := make([]models.EmailEntry, 0, len(emails)+1)
	found := false
	for _, e := range emails {
		e.IsPrimary = false
		if strings.EqualFold(e.Address, previous) {
			e.LastUsedAt = at
		}
		if strings.EqualFold(e.Address, next) {
			e.Address = next
			e.IsPrimary = true
			e.LastUsedAt = at
			found = true
		}
		out = append(out, e)
	}
	if !found {
		out = append(out, models.EmailEntry{
			Address:    next,
			IsPrimary:  true,
			AddedAt:    at,
			LastUsedAt: at,
			Source:     models.EmailSourceChange,
		})
	}
	return out
}

// RecordEmailChange moves the primary address from previous to next.
func (s *Synchronizer) RecordEmailChange(ctx context.Context, userID, previous, next string) error {
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		reg := s.repos.Registry(db)
		cur, err := reg.Get(ctx, userID)
		if err != nil {
			return err
		}
		at := s.now()
		return reg.UpdateEmails(ctx, userID, next, applyEmailChange(cur.Emails, previous, next, at), at)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return s.Resync(ctx, userID)
	}
	return err
}

// TouchActivity stamps lastActive.
func (s *Synchronizer) TouchActivity(ctx context.Context, userID string) error {
	return s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Registry(db).TouchActivity(ctx, userID, s.now())
	})
}

// Remove drops the registry row of a deleted user.
func (s *Synchronizer) Remove(ctx context.Context, userID string) error {
	return s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Registry(db).Delete(ctx, userID)
	})
}

// Get returns the registry row of userID.
func (s *Synchronizer) Get(ctx context.Context, userID string) (*models.UserRegistry, error) {
	var out *models.UserRegistry
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		out, err = s.repos.Registry(db).Get(ctx, userID)
		return err
	})
	return out, err
}
