// Package memory is an in-memory RepositoryManager. Every repository it vends
// shares one Store, so flows that span several stores can be exercised
// without a database. Failures can be injected per operation.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/emailhistory"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/users"
	"github.com/google/uuid"
)

// Operation names accepted by FailOn.
const (
	OpUserCreate            = "users.Create"
	OpUserUpdateEmail       = "users.UpdateEmail"
	OpUserUpdatePassword    = "users.UpdatePasswordHash"
	OpUserSetResetToken     = "users.SetResetToken"
	OpUserDelete            = "users.Delete"
	OpSubscriptionList      = "subscriptions.ListByOwner"
	OpSubscriptionDelete    = "subscriptions.Delete"
	OpSubscriptionDeleteIDs = "subscriptions.DeleteByIDs"
	OpSubscriptionDeleteAll = "subscriptions.DeleteAllByOwner"
	OpArchiveUser           = "archive.InsertDeletedUser"
	OpArchiveSubscription   = "archive.InsertDeletedSubscription"
	OpEmailHistoryAppend    = "emailhistory.Append"
	OpRegistryReplace       = "registry.ReplaceSubscriptions"
	OpRegistryUpsert        = "registry.Upsert"
)

type failure struct {
	err   error
	after int
}

// Store holds every collection.
type Store struct {
	mu sync.Mutex

	users         map[string]*models.User
	subscriptions map[string]*models.Subscription
	deletedUsers  []*models.DeletedUser
	deletedSubs   []*models.DeletedSubscription
	emailHistory  []*models.EmailHistory
	registry      map[string]*models.UserRegistry

	failures map[string]*failure
	calls    map[string]int

	// Now stamps created_at/updated_at. Each call advances by one microsecond
	// so insertion order is preserved.
	Now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	return &Store{
		users:         make(map[string]*models.User),
		subscriptions: make(map[string]*models.Subscription),
		registry:      make(map[string]*models.UserRegistry),
		failures:      make(map[string]*failure),
		calls:         make(map[string]int),
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Microsecond)
		},
	}
}

// FailOn makes op return err once it has succeeded `after` times.
func (s *Store) FailOn(op string, err error, after int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{err: err, after: after}
}

// Calls returns how many times op was invoked, failed or not.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// check must be called with mu held.
func (s *Store) check(op string) error {
	s.calls[op]++
	f, ok := s.failures[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	return fmt.Errorf("db error: %w", f.err)
}

// Manager implements repomanager.RepositoryManager over a Store. The DBTX
// arguments are ignored.
type Manager struct {
	Store *Store
}

// NewManager returns a manager over a fresh store.
func NewManager() *Manager {
	return &Manager{Store: NewStore()}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository { return &userRepo{s: m.Store} }

func (m *Manager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return &subscriptionRepo{s: m.Store}
}

func (m *Manager) Archive(dbx.DBTX) archive.Repository { return &archiveRepo{s: m.Store} }

func (m *Manager) EmailHistory(dbx.DBTX) emailhistory.Repository {
	return &emailHistoryRepo{s: m.Store}
}

func (m *Manager) Registry(dbx.DBTX) registry.Repository { return &registryRepo{s: m.Store} }

func newID() string { return uuid.NewString() }
