package memory

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type archiveRepo struct {
	s *Store
}

func (r *archiveRepo) InsertDeletedUser(_ context.Context, d *models.DeletedUser) (*models.DeletedUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpArchiveUser); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = newID()
	}
	c := *d
	r.s.deletedUsers = append(r.s.deletedUsers, &c)
	return d, nil
}

func (r *archiveRepo) InsertDeletedSubscription(_ context.Context, d *models.DeletedSubscription) (*models.DeletedSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpArchiveSubscription); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = newID()
	}
	c := *d
	r.s.deletedSubs = append(r.s.deletedSubs, &c)
	return d, nil
}

func (r *archiveRepo) ListDeletedSubscriptions(_ context.Context, userID string) ([]*models.DeletedSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.DeletedSubscription, 0)
	for _, d := range r.s.deletedSubs {
		if d.UserID == userID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *archiveRepo) ListDeletedUsers(_ context.Context, originalUserID string) ([]*models.DeletedUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.DeletedUser, 0)
	for _, d := range r.s.deletedUsers {
		if d.OriginalUserID == originalUserID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

type emailHistoryRepo struct {
	s *Store
}

func (r *emailHistoryRepo) Append(_ context.Context, h *models.EmailHistory) (*models.EmailHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(OpEmailHistoryAppend); err != nil {
		return nil, err
	}
	if h.ID == "" {
		h.ID = newID()
	}
	c := *h
	r.s.emailHistory = append(r.s.emailHistory, &c)
	return h, nil
}

func (r *emailHistoryRepo) ListByUser(_ context.Context, userID string) ([]*models.EmailHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.EmailHistory, 0)
	for _, h := range r.s.emailHistory {
		if h.UserID == userID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}
