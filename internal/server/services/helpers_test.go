package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/auth"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/notify"
	"github.com/dmitrijs2005/subkeeper/internal/server/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminID = "00000000-0000-0000-0000-00000000a11a"

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Dispatch(_ context.Context, msg notify.Message) <-chan notify.Result {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	ch := make(chan notify.Result, 1)
	ch <- notify.Result{Kind: msg.Kind, To: msg.To, Err: n.err}
	return ch
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func (n *recordingNotifier) last(kind notify.Kind) (notify.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Kind == kind {
			return n.msgs[i], true
		}
	}
	return notify.Message{}, false
}

type fixture struct {
	m        *memory.Manager
	sync     *registry.Synchronizer
	notes    *recordingNotifier
	accounts *AccountService
	subs     *SubscriptionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := memory.NewManager()
	ledger, err := auth.NewLedger("test-secret", 0, 0)
	require.NoError(t, err)

	sync := registry.NewSynchronizer(memory.Runner{}, m, logging.Nop{})
	writer := archive.NewWriter(m, nil, logging.Nop{})
	notes := &recordingNotifier{}

	accounts := NewAccountService(AccountDeps{
		Store:      memory.Runner{},
		Repos:      m,
		Ledger:     ledger,
		Hasher:     &auth.BcryptHasher{Cost: bcrypt.MinCost},
		Archive:    writer,
		Registry:   sync,
		Notifier:   notes,
		Admin:      auth.AdminPolicy{AdminUserID: adminID},
		AppBaseURL: "https://app.example.com/",
		Log:        logging.Nop{},
	})
	subs := NewSubscriptionService(SubscriptionDeps{
		Store:    memory.Runner{},
		Repos:    m,
		Archive:  writer,
		Hook:     registry.NewSyncHook(sync, logging.Nop{}),
		Notifier: notes,
		Log:      logging.Nop{},
	})

	return &fixture{m: m, sync: sync, notes: notes, accounts: accounts, subs: subs}
}

func (f *fixture) signup(t *testing.T, name, email, password string) *Session {
	t.Helper()
	sess, err := f.accounts.Signup(context.Background(), SignupInput{
		Name: name, Email: email, Password: password, ConfirmPassword: password,
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) addSub(t *testing.T, ownerID, name, price string, cycle models.BillingCycle) *models.Subscription {
	t.Helper()
	s, err := f.subs.Create(context.Background(), ownerID, SubscriptionInput{
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Category:     "Streaming",
		BillingCycle: cycle,
		StartDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func resetTokenFrom(t *testing.T, msg notify.Message) string {
	t.Helper()
	u, err := url.Parse(msg.Data[notify.DataResetURL])
	require.NoError(t, err)
	return u.Query().Get("token")
}
