// Package archive sequences archive-then-delete for users and subscriptions.
// A deletion is only reported as done when its snapshot was written first.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/spend"
)

// Request describes who is deleting and why.
type Request struct {
	Actor  models.Actor
	Reason string
}

// Writer writes archive snapshots and removes the matching live rows.
type Writer struct {
	repos    repomanager.RepositoryManager
	exporter Exporter
	log      logging.Logger
	now      func() time.Time
}

// NewWriter builds a Writer. A nil exporter disables the cold copy.
func NewWriter(repos repomanager.RepositoryManager, exporter Exporter, log logging.Logger) *Writer {
	if exporter == nil {
		exporter = NopExporter{}
	}
	return &Writer{
		repos:    repos,
		exporter: exporter,
		log:      log.With("module", "archive"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Writer) consistencyFailure(ctx context.Context, op, userID, entityID string, err error) error {
	cerr := &common.ConsistencyError{Op: op, UserID: userID, EntityID: entityID, Err: err}
	w.log.Error(ctx, "archive and live store diverged", "op", op, "user_id", userID, "entity_id", entityID, "error", err)
	return cerr
}

// DeleteSubscription archives one subscription and then removes it.
// If the archive write fails nothing is deleted. If the delete fails or finds
// no row after the snapshot was written, a *common.ConsistencyError is returned.
func (w *Writer) DeleteSubscription(ctx context.Context, db dbx.DBTX, sub *models.Subscription, req Request) error {
	arch := w.repos.Archive(db)
	subs := w.repos.Subscriptions(db)

	snap := models.SnapshotSubscription(sub, req.Actor, models.DeletionIndividual, req.Reason, w.now())
	if _, err := arch.InsertDeletedSubscription(ctx, snap); err != nil {
		return err
	}

	n, err := subs.Delete(ctx, sub.UserID, sub.ID)
	if err != nil {
		return w.consistencyFailure(ctx, "delete_subscription", sub.UserID, sub.ID, err)
	}
	if n == 0 {
		return w.consistencyFailure(ctx, "delete_subscription", sub.UserID, sub.ID, common.ErrorNotFound)
	}
	return nil
}

// DeleteSubscriptions archives every row of list, tagged bulk, then removes
// exactly the rows that were archived. Archival stops at the first failure;
// the returned count is the number of rows actually removed. When not a single
// row could be archived the archive error is returned and nothing is deleted.
func (w *Writer) DeleteSubscriptions(ctx context.Context, db dbx.DBTX, ownerID string, list []*models.Subscription, req Request) (int64, error) {
	if len(list) == 0 {
		return 0, nil
	}

	arch := w.repos.Archive(db)
	subs := w.repos.Subscriptions(db)
	at := w.now()

	archived := make([]string, 0, len(list))
	var archiveErr error
	for _, s := range list {
		snap := models.SnapshotSubscription(s, req.Actor, models.DeletionBulk, req.Reason, at)
		if _, err := arch.InsertDeletedSubscription(ctx, snap); err != nil {
			archiveErr = err
			break
		}
		archived = append(archived, s.ID)
	}

	if len(archived) == 0 {
		return 0, archiveErr
	}
	if archiveErr != nil {
		w.log.Warn(ctx, "bulk archival stopped early, deleting archived rows only",
			"user_id", ownerID, "archived", len(archived), "requested", len(list), "error", archiveErr)
	}

	n, err := subs.DeleteByIDs(ctx, ownerID, archived)
	if err != nil {
		return 0, w.consistencyFailure(ctx, "delete_all_subscriptions", ownerID, "", err)
	}
	if n != int64(len(archived)) {
		w.log.Warn(ctx, "archived rows vanished before delete",
			"user_id", ownerID, "archived", len(archived), "removed", n)
	}
	return n, nil
}

// DeleteUser writes the DeletedUser snapshot, then removes the user's
// subscriptions and the user row. A failed snapshot aborts before any live data
// is touched. Failures after the snapshot leave already-deleted rows deleted and
// surface as a *common.ConsistencyError.
func (w *Writer) DeleteUser(ctx context.Context, db dbx.DBTX, user *models.User, req Request) (*models.DeletedUser, error) {
	subs := w.repos.Subscriptions(db)

	owned, err := subs.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	snap := &models.DeletedUser{
		OriginalUserID:    user.ID,
		Name:              user.Name,
		Email:             user.Email,
		Bio:               user.Bio,
		OriginalCreatedAt: user.CreatedAt,
		DeletedAt:         w.now(),
		SubscriptionCount: len(owned),
		TotalSpent:        spend.Total(owned),
		Reason:            req.Reason,
		DeletedBy:         req.Actor,
	}
	if _, err := w.repos.Archive(db).InsertDeletedUser(ctx, snap); err != nil {
		return nil, err
	}

	if _, err := subs.DeleteAllByOwner(ctx, user.ID); err != nil {
		return snap, w.consistencyFailure(ctx, "delete_account", user.ID, user.ID, err)
	}
	if _, err := w.repos.Users(db).Delete(ctx, user.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			w.log.Warn(ctx, "user row already gone after snapshot", "user_id", user.ID)
			return snap, nil
		}
		return snap, w.consistencyFailure(ctx, "delete_account", user.ID, user.ID, err)
	}

	if err := w.exporter.ExportDeletedUser(ctx, snap); err != nil {
		w.log.Warn(ctx, "deleted user export failed", "user_id", user.ID, "snapshot_id", snap.ID, "error", err)
	}
	return snap, nil
}
