package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/notify"
	"github.com/dmitrijs2005/subkeeper/internal/server/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

// SubscriptionDeps groups the collaborators of SubscriptionService.
type SubscriptionDeps struct {
	Store    dbx.Runner
	Repos    repomanager.RepositoryManager
	Archive  *archive.Writer
	Hook     registry.Hook
	Notifier Notifier
	Log      logging.Logger
}

// SubscriptionService manages a user's subscriptions. Every mutation is
// followed by an owner-changed hook that refreshes the registry.
type SubscriptionService struct {
	store    dbx.Runner
	repos    repomanager.RepositoryManager
	archive  *archive.Writer
	hook     registry.Hook
	notifier Notifier
	log      logging.Logger
	now      func() time.Time
}

func NewSubscriptionService(d SubscriptionDeps) *SubscriptionService {
	return &SubscriptionService{
		store:    d.Store,
		repos:    d.Repos,
		archive:  d.Archive,
		hook:     d.Hook,
		notifier: d.Notifier,
		log:      d.Log.With("module", "subscriptions"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SubscriptionService) List(ctx context.Context, ownerID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		subs, err = s.repos.Subscriptions(db).ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionService) Get(ctx context.Context, ownerID, id string) (*models.Subscription, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	var sub *models.Subscription
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		sub, err = s.repos.Subscriptions(db).Get(ctx, ownerID, id)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error loading subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionService) fill(sub *models.Subscription, in SubscriptionInput) {
	sub.Name = in.Name
	sub.Price = in.Price.Round(2)
	sub.Category = in.Category
	sub.BillingCycle = in.BillingCycle
	sub.StartDate = in.StartDate.UTC()
	sub.NextPaymentDate = in.NextPaymentDate.UTC()
	if in.NextPaymentDate.IsZero() {
		sub.NextPaymentDate = in.BillingCycle.NextPayment(sub.StartDate, s.now())
	}
	sub.Description = in.Description
}

// Create adds a subscription owned by ownerID.
func (s *SubscriptionService) Create(ctx context.Context, ownerID string, in SubscriptionInput) (*models.Subscription, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	sub := &models.Subscription{UserID: ownerID}
	s.fill(sub, in)

	var created *models.Subscription
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		created, err = s.repos.Subscriptions(db).Create(ctx, sub)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating subscription: %w", err)
	}

	s.hook.OwnerChanged(ctx, ownerID)
	return created, nil
}

// Update replaces the editable fields of one of ownerID's subscriptions.
func (s *SubscriptionService) Update(ctx context.Context, ownerID, id string, in SubscriptionInput) (*models.Subscription, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	sub := &models.Subscription{ID: id, UserID: ownerID}
	s.fill(sub, in)

	var updated *models.Subscription
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		updated, err = s.repos.Subscriptions(db).Update(ctx, sub)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error updating subscription: %w", err)
	}

	s.hook.OwnerChanged(ctx, ownerID)
	return updated, nil
}

// DeleteOne archives and removes one subscription.
func (s *SubscriptionService) DeleteOne(ctx context.Context, ownerID, id, reason string) error {
	ctx = context.WithoutCancel(ctx)

	sub, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	req := archive.Request{Actor: models.ActorUser, Reason: sanitize(reason)}
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.archive.DeleteSubscription(ctx, db, sub, req)
	})
	if err != nil {
		if errors.Is(err, common.ErrorConsistency) {
			s.hook.OwnerChanged(ctx, ownerID)
		}
		return fmt.Errorf("error deleting subscription: %w", err)
	}

	s.hook.OwnerChanged(ctx, ownerID)
	return nil
}

// DeleteAll archives and removes every subscription of ownerID and returns
// how many were removed. An owner with nothing to delete is left untouched.
func (s *SubscriptionService) DeleteAll(ctx context.Context, ownerID, reason string) (int64, error) {
	ctx = context.WithoutCancel(ctx)

	subs, err := s.List(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	req := archive.Request{Actor: models.ActorUser, Reason: sanitize(reason)}
	var removed int64
	err = s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		removed, err = s.archive.DeleteSubscriptions(ctx, db, ownerID, subs, req)
		return err
	})
	if removed > 0 || errors.Is(err, common.ErrorConsistency) {
		s.hook.OwnerChanged(ctx, ownerID)
	}
	if err != nil {
		return removed, fmt.Errorf("error deleting subscriptions: %w", err)
	}
	return removed, nil
}

// SendPaymentReminders notifies ownerID about every subscription charging
// within the next window, if they opted in. It returns how many reminders
// were submitted.
func (s *SubscriptionService) SendPaymentReminders(ctx context.Context, ownerID string, window time.Duration) (int, error) {
	var user *models.User
	var subs []*models.Subscription
	err := s.store.Run(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		if user, err = s.repos.Users(db).GetByID(ctx, ownerID); err != nil {
			return err
		}
		subs, err = s.repos.Subscriptions(db).ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("error loading reminders: %w", err)
	}
	if !user.Preferences.PaymentReminders {
		return 0, nil
	}

	now := s.now()
	until := now.Add(window)
	sent := 0
	for _, sub := range subs {
		if sub.NextPaymentDate.Before(now) || sub.NextPaymentDate.After(until) {
			continue
		}
		s.notifier.Dispatch(ctx, notify.Message{
			Kind: notify.KindPaymentReminder,
			To:   user.Email,
			Data: map[string]string{
				notify.DataName:    user.Name,
				notify.DataService: sub.Name,
				notify.DataAmount:  sub.Price.StringFixed(2),
				notify.DataDueDate: sub.NextPaymentDate.Format(time.DateOnly),
			},
		})
		sent++
	}
	return sent, nil
}
