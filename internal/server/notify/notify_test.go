package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func TestCompose_AllKinds(t *testing.T) {
	cases := []struct {
		msg     Message
		subject string
		body    string
	}{
		{Message{Kind: KindWelcome, Data: map[string]string{DataName: "A"}}, "Welcome to SubKeeper", "Hello A,"},
		{Message{Kind: KindPasswordChanged}, "password was changed", "Hello,"},
		{Message{Kind: KindPasswordReset, Data: map[string]string{DataResetURL: "https://app/reset?token=t"}}, "Reset your", "https://app/reset?token=t"},
		{Message{Kind: KindPaymentReminder, Data: map[string]string{DataService: "Netflix", DataAmount: "15.49", DataDueDate: "2026-05-01"}}, "Upcoming payment: Netflix", "charge 15.49 on 2026-05-01"},
		{Message{Kind: KindMonthlyReport, Data: map[string]string{DataCount: "2", DataTotal: "53.30"}}, "monthly subscription report", "2 active subscriptions costing 53.30"},
	}
	for _, tc := range cases {
		t.Run(string(tc.msg.Kind), func(t *testing.T) {
			subject, body, err := compose(tc.msg)
			require.NoError(t, err)
			assert.Contains(t, subject, tc.subject)
			assert.Contains(t, body, tc.body)
		})
	}
}

func TestCompose_Errors(t *testing.T) {
	_, _, err := compose(Message{Kind: "fax"})
	assert.Error(t, err)

	_, _, err = compose(Message{Kind: KindPasswordReset})
	assert.Error(t, err)
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestSMTPSender_Send(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{from: "no-reply@subkeeper.local", dialer: d}

	res := s.Send(context.Background(), Message{Kind: KindWelcome, To: "a@x.com", Data: map[string]string{DataName: "A"}})

	require.True(t, res.OK(), res.Err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"a@x.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"no-reply@subkeeper.local"}, d.sent[0].GetHeader("From"))
	assert.Equal(t, []string{"Welcome to SubKeeper"}, d.sent[0].GetHeader("Subject"))
}

func TestSMTPSender_Failures(t *testing.T) {
	d := &fakeDialer{err: errors.New("smtp down")}
	s := &SMTPSender{from: "f", dialer: d}

	res := s.Send(context.Background(), Message{Kind: KindWelcome, To: "a@x.com"})
	assert.EqualError(t, res.Err, "smtp down")

	res = s.Send(context.Background(), Message{Kind: KindWelcome})
	assert.Error(t, res.Err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = s.Send(ctx, Message{Kind: KindWelcome, To: "a@x.com"})
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestNewSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.local", Port: 587, From: "f@x.com"})
	assert.Equal(t, "f@x.com", s.from)
	assert.NotNil(t, s.dialer)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(logging.Nop{})
	assert.True(t, s.Send(context.Background(), Message{Kind: KindWelcome, To: "a@x.com"}).OK())
	assert.False(t, s.Send(context.Background(), Message{Kind: "unknown"}).OK())
}

type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(_ context.Context, msg Message) Result {
	b.started <- struct{}{}
	<-b.release
	return Result{Kind: msg.Kind, To: msg.To}
}

type panicSender struct{}

func (panicSender) Send(context.Context, Message) Result { panic("boom") }

type funcSender func(context.Context, Message) Result

func (f funcSender) Send(ctx context.Context, m Message) Result { return f(ctx, m) }

func recv(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestDispatcher_DeliversResult(t *testing.T) {
	d := NewDispatcher(funcSender(func(_ context.Context, m Message) Result {
		return Result{Kind: m.Kind, To: m.To}
	}), 2, 4, logging.Nop{})
	defer d.Close()

	r := recv(t, d.Dispatch(context.Background(), Message{Kind: KindWelcome, To: "a@x.com"}))
	assert.True(t, r.OK())
	assert.Equal(t, "a@x.com", r.To)
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	b := &blockingSender{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(b, 1, 1, logging.Nop{})

	first := d.Dispatch(context.Background(), Message{Kind: KindWelcome, To: "1"})
	<-b.started

	second := d.Dispatch(context.Background(), Message{Kind: KindWelcome, To: "2"})

	start := time.Now()
	third := d.Dispatch(context.Background(), Message{Kind: KindWelcome, To: "3"})
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, recv(t, third).Err, ErrQueueFull)

	close(b.release)
	assert.True(t, recv(t, first).OK())
	assert.True(t, recv(t, second).OK())
	d.Close()
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(panicSender{}, 1, 1, logging.Nop{})
	defer d.Close()

	r := recv(t, d.Dispatch(context.Background(), Message{Kind: KindWelcome, To: "a"}))
	require.Error(t, r.Err)
	assert.True(t, strings.Contains(r.Err.Error(), "panic"))
}

func TestDispatcher_DetachesFromCallerContext(t *testing.T) {
	d := NewDispatcher(funcSender(func(ctx context.Context, m Message) Result {
		return Result{Kind: m.Kind, To: m.To, Err: ctx.Err()}
	}), 1, 1, logging.Nop{})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := d.Dispatch(ctx, Message{Kind: KindWelcome, To: "a"})
	cancel()

	assert.True(t, recv(t, ch).OK())
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher(funcSender(func(_ context.Context, m Message) Result { return Result{} }), 1, 1, logging.Nop{})
	d.Close()
	d.Close()

	r := recv(t, d.Dispatch(context.Background(), Message{Kind: KindWelcome}))
	assert.ErrorIs(t, r.Err, ErrClosed)
}
