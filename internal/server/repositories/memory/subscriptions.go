package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type subscriptionRepo struct {
	s *Store
}

func copySubscription(s *models.Subscription) *models.Subscription {
	c := *s
	return &c
}

// owned must be called with mu held.
func (r *subscriptionRepo) owned(ownerID string) []*models.Subscription {
	out := make([]*models.Subscription, 0)
	for _, s := range r.s.subscriptions {
		if s.UserID == ownerID {
			out = append(out, copySubscription(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *subscriptionRepo) ListByOwner(_ context.Context, ownerID string) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpSubscriptionList); err != nil {
		return nil, err
	}
	return r.owned(ownerID), nil
}

func (r *subscriptionRepo) Get(_ context.Context, ownerID, id string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.subscriptions[id]
	if !ok || s.UserID != ownerID {
		return nil, common.ErrorNotFound
	}
	return copySubscription(s), nil
}

func (r *subscriptionRepo) Create(_ context.Context, s *models.Subscription) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[s.UserID]; !ok {
		return nil, common.ErrorNotFound
	}
	if s.ID == "" {
		s.ID = newID()
	}
	now := r.s.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	r.s.subscriptions[s.ID] = copySubscription(s)
	return s, nil
}

func (r *subscriptionRepo) Update(_ context.Context, s *models.Subscription) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.subscriptions[s.ID]
	if !ok || cur.UserID != s.UserID {
		return nil, common.ErrorNotFound
	}
	updated := copySubscription(s)
	updated.CreatedAt = cur.CreatedAt
	updated.UpdatedAt = r.s.Now()
	r.s.subscriptions[s.ID] = updated
	return copySubscription(updated), nil
}

func (r *subscriptionRepo) Delete(_ context.Context, ownerID, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpSubscriptionDelete); err != nil {
		return 0, err
	}
	s, ok := r.s.subscriptions[id]
	if !ok || s.UserID != ownerID {
		return 0, nil
	}
	delete(r.s.subscriptions, id)
	return 1, nil
}

func (r *subscriptionRepo) DeleteByIDs(_ context.Context, ownerID string, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpSubscriptionDeleteIDs); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if s, ok := r.s.subscriptions[id]; ok && s.UserID == ownerID {
			delete(r.s.subscriptions, id)
			n++
		}
	}
	return n, nil
}

func (r *subscriptionRepo) DeleteAllByOwner(_ context.Context, ownerID string) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpSubscriptionDeleteAll); err != nil {
		return nil, err
	}
	out := r.owned(ownerID)
	for _, s := range out {
		delete(r.s.subscriptions, s.ID)
	}
	return out, nil
}

// SubscriptionCount is the number of live subscriptions of ownerID.
func (s *Store) SubscriptionCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subscriptions {
		if sub.UserID == ownerID {
			n++
		}
	}
	return n
}
