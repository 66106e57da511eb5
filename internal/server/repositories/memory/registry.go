package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/shopspring/decimal"
)

type registryRepo struct {
	s *Store
}

func copyRegistry(r *models.UserRegistry) *models.UserRegistry {
	c := *r
	c.Emails = append([]models.EmailEntry{}, r.Emails...)
	c.Subscriptions = append([]models.SubscriptionSummary{}, r.Subscriptions...)
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (r *registryRepo) Get(_ context.Context, userID string) (*models.UserRegistry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registry[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyRegistry(reg), nil
}

func (r *registryRepo) Upsert(_ context.Context, reg *models.UserRegistry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpRegistryUpsert); err != nil {
		return err
	}
	c := copyRegistry(reg)
	if cur, ok := r.s.registry[reg.UserID]; ok {
		c.AccountCreatedAt = cur.AccountCreatedAt
	}
	r.s.registry[reg.UserID] = c
	return nil
}

func (r *registryRepo) ReplaceSubscriptions(_ context.Context, userID, displayName, currentEmail string,
	subs []models.SubscriptionSummary, total decimal.Decimal, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpRegistryReplace); err != nil {
		return err
	}
	reg, ok := r.s.registry[userID]
	if !ok {
		return common.ErrorNotFound
	}
	reg.DisplayName, reg.CurrentEmail = displayName, currentEmail
	reg.Subscriptions = append([]models.SubscriptionSummary{}, subs...)
	reg.TotalMonthlySpend = total
	reg.LastUpdated = at
	return nil
}

func (r *registryRepo) UpdateEmails(_ context.Context, userID, currentEmail string, emails []models.EmailEntry, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registry[userID]
	if !ok {
		return common.ErrorNotFound
	}
	reg.CurrentEmail = currentEmail
	reg.Emails = append([]models.EmailEntry{}, emails...)
	reg.LastUpdated = at
	return nil
}

func (r *registryRepo) TouchActivity(_ context.Context, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registry[userID]
	if !ok {
		return common.ErrorNotFound
	}
	reg.LastActive = at
	return nil
}

func (r *registryRepo) Delete(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.registry, userID)
	return nil
}
