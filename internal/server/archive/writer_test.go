package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type recordingExporter struct {
	got []*models.DeletedUser
	err error
}

func (e *recordingExporter) ExportDeletedUser(_ context.Context, d *models.DeletedUser) error {
	e.got = append(e.got, d)
	return e.err
}

func setup(t *testing.T) (*Writer, *memory.Manager, *recordingExporter) {
	t.Helper()
	m := memory.NewManager()
	exp := &recordingExporter{}
	w := NewWriter(m, exp, logging.Nop{})
	w.now = func() time.Time { return fixedNow }
	return w, m, exp
}

func seedUser(t *testing.T, m *memory.Manager, email string) *models.User {
	t.Helper()
	u, err := m.Users(nil).Create(context.Background(), &models.User{
		Name: "A", Email: email, PasswordHash: "h", Preferences: models.DefaultPreferences(),
	})
	require.NoError(t, err)
	return u
}

func seedSub(t *testing.T, m *memory.Manager, owner, name, price string, cycle models.BillingCycle) *models.Subscription {
	t.Helper()
	s, err := m.Subscriptions(nil).Create(context.Background(), &models.Subscription{
		UserID: owner, Name: name, Price: decimal.RequireFromString(price), Category: "c", BillingCycle: cycle,
	})
	require.NoError(t, err)
	return s
}

func TestDeleteSubscription_ArchivesThenDeletes(t *testing.T) {
	w, m, _ := setup(t)
	ctx := context.Background()
	u := seedUser(t, m, "a@x.com")
	s := seedSub(t, m, u.ID, "Netflix", "15.49", models.CycleMonthly)

	err := w.DeleteSubscription(ctx, nil, s, Request{Actor: models.ActorUser, Reason: "too pricey"})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Store.SubscriptionCount(u.ID))
	archived, _ := m.Archive(nil).ListDeletedSubscriptions(ctx, u.ID)
	require.Len(t, archived, 1)
	assert.Equal(t, s.ID, archived[0].OriginalSubscriptionID)
	assert.Equal(t, models.DeletionIndividual, archived[0].DeletionMethod)
	assert.Equal(t, "too pricey", archived[0].Reason)
	assert.True(t, archived[0].DeletedAt.Equal(fixedNow))
}

func TestDeleteSubscription_ArchiveFailureKeepsLiveRow(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	s := seedSub(t, m, u.ID, "Netflix", "15.49", models.CycleMonthly)
	m.Store.FailOn(memory.OpArchiveSubscription, errors.New("archive down"), 0)

	err := w.DeleteSubscription(context.Background(), nil, s, Request{Actor: models.ActorUser})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorConsistency)
	assert.Equal(t, 1, m.Store.SubscriptionCount(u.ID))
}

func TestDeleteSubscription_DeleteFailureIsConsistencyError(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	s := seedSub(t, m, u.ID, "Netflix", "15.49", models.CycleMonthly)
	m.Store.FailOn(memory.OpSubscriptionDelete, errors.New("conn reset"), 0)

	err := w.DeleteSubscription(context.Background(), nil, s, Request{Actor: models.ActorUser})
	require.ErrorIs(t, err, common.ErrorConsistency)

	var cerr *common.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, s.ID, cerr.EntityID)
	assert.Equal(t, u.ID, cerr.UserID)
}

func TestDeleteSubscription_ConcurrentlyRemoved(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	s := seedSub(t, m, u.ID, "Netflix", "15.49", models.CycleMonthly)
	_, _ = m.Subscriptions(nil).Delete(context.Background(), u.ID, s.ID)

	err := w.DeleteSubscription(context.Background(), nil, s, Request{Actor: models.ActorUser})
	assert.ErrorIs(t, err, common.ErrorConsistency)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteSubscriptions_OneArchiveRowPerDeletedRow(t *testing.T) {
	w, m, _ := setup(t)
	ctx := context.Background()
	u := seedUser(t, m, "a@x.com")
	var list []*models.Subscription
	for i := 0; i < 25; i++ {
		list = append(list, seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly))
	}

	n, err := w.DeleteSubscriptions(ctx, nil, u.ID, list, Request{Actor: models.ActorUser})
	require.NoError(t, err)
	assert.EqualValues(t, 25, n)

	archived, _ := m.Archive(nil).ListDeletedSubscriptions(ctx, u.ID)
	assert.Len(t, archived, 25)
	for _, a := range archived {
		assert.Equal(t, models.DeletionBulk, a.DeletionMethod)
	}
	assert.Equal(t, 0, m.Store.SubscriptionCount(u.ID))
}

func TestDeleteSubscriptions_PartialArchival(t *testing.T) {
	w, m, _ := setup(t)
	ctx := context.Background()
	u := seedUser(t, m, "a@x.com")
	var list []*models.Subscription
	for i := 0; i < 5; i++ {
		list = append(list, seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly))
	}
	m.Store.FailOn(memory.OpArchiveSubscription, errors.New("archive down"), 3)

	n, err := w.DeleteSubscriptions(ctx, nil, u.ID, list, Request{Actor: models.ActorUser})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	archived, _ := m.Archive(nil).ListDeletedSubscriptions(ctx, u.ID)
	assert.Len(t, archived, 3)
	assert.Equal(t, 2, m.Store.SubscriptionCount(u.ID))

	remaining, _ := m.Subscriptions(nil).ListByOwner(ctx, u.ID)
	for _, r := range remaining {
		for _, a := range archived {
			assert.NotEqual(t, a.OriginalSubscriptionID, r.ID, "archived row must not stay live")
		}
	}
}

func TestDeleteSubscriptions_NothingArchived(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	list := []*models.Subscription{seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly)}
	m.Store.FailOn(memory.OpArchiveSubscription, errors.New("archive down"), 0)

	n, err := w.DeleteSubscriptions(context.Background(), nil, u.ID, list, Request{Actor: models.ActorUser})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, m.Store.SubscriptionCount(u.ID))
	assert.Zero(t, m.Store.Calls(memory.OpSubscriptionDeleteIDs))
}

func TestDeleteSubscriptions_Empty(t *testing.T) {
	w, m, _ := setup(t)

	n, err := w.DeleteSubscriptions(context.Background(), nil, "u", nil, Request{Actor: models.ActorUser})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, m.Store.Calls(memory.OpSubscriptionDeleteIDs))
}

func TestDeleteSubscriptions_DeleteFailure(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	list := []*models.Subscription{seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly)}
	m.Store.FailOn(memory.OpSubscriptionDeleteIDs, errors.New("conn reset"), 0)

	_, err := w.DeleteSubscriptions(context.Background(), nil, u.ID, list, Request{Actor: models.ActorUser})
	assert.ErrorIs(t, err, common.ErrorConsistency)
}

func TestDeleteUser_SnapshotCarriesAggregate(t *testing.T) {
	w, m, exp := setup(t)
	ctx := context.Background()
	u := seedUser(t, m, "a@x.com")
	seedSub(t, m, u.ID, "Weekly", "10.00", models.CycleWeekly)
	seedSub(t, m, u.ID, "Yearly", "120.00", models.CycleYearly)

	snap, err := w.DeleteUser(ctx, nil, u, Request{Actor: models.ActorUser, Reason: "bye"})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.SubscriptionCount)
	assert.Equal(t, "53.30", snap.TotalSpent.StringFixed(2))
	assert.Equal(t, u.ID, snap.OriginalUserID)
	assert.Equal(t, 0, m.Store.UserCount())
	assert.Equal(t, 0, m.Store.SubscriptionCount(u.ID))

	rows, _ := m.Archive(nil).ListDeletedUsers(ctx, u.ID)
	assert.Len(t, rows, 1)
	require.Len(t, exp.got, 1)
	assert.Equal(t, snap.ID, exp.got[0].ID)
}

func TestDeleteUser_SnapshotFailureTouchesNothing(t *testing.T) {
	w, m, exp := setup(t)
	u := seedUser(t, m, "a@x.com")
	seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly)
	m.Store.FailOn(memory.OpArchiveUser, errors.New("archive down"), 0)

	_, err := w.DeleteUser(context.Background(), nil, u, Request{Actor: models.ActorUser})
	require.Error(t, err)
	assert.Equal(t, 1, m.Store.UserCount())
	assert.Equal(t, 1, m.Store.SubscriptionCount(u.ID))
	assert.Zero(t, m.Store.Calls(memory.OpSubscriptionDeleteAll))
	assert.Empty(t, exp.got)
}

func TestDeleteUser_UserDeleteFailureAfterSnapshot(t *testing.T) {
	w, m, _ := setup(t)
	u := seedUser(t, m, "a@x.com")
	seedSub(t, m, u.ID, "S", "1.00", models.CycleMonthly)
	m.Store.FailOn(memory.OpUserDelete, errors.New("conn reset"), 0)

	snap, err := w.DeleteUser(context.Background(), nil, u, Request{Actor: models.ActorUser})
	require.ErrorIs(t, err, common.ErrorConsistency)
	require.NotNil(t, snap)
	assert.Equal(t, 0, m.Store.SubscriptionCount(u.ID), "already deleted rows stay deleted")
	assert.Equal(t, 1, m.Store.UserCount())
}

func TestDeleteUser_ExportFailureIsBestEffort(t *testing.T) {
	w, m, exp := setup(t)
	exp.err = errors.New("s3 down")
	u := seedUser(t, m, "a@x.com")

	_, err := w.DeleteUser(context.Background(), nil, u, Request{Actor: models.ActorAdmin})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Store.UserCount())
}
