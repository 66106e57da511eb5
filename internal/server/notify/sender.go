// Package notify delivers user notifications. Senders never panic or block the
// caller: every send resolves to a Result, and the Dispatcher runs sends on a
// bounded worker pool.
package notify

import (
	"context"
	"fmt"
)

// Kind selects the notification template.
type Kind string

const (
	KindWelcome         Kind = "welcome"
	KindPasswordChanged Kind = "password-changed"
	KindPasswordReset   Kind = "password-reset"
	KindPaymentReminder Kind = "payment-reminder"
	KindMonthlyReport   Kind = "monthly-report"
)

// Well-known Data keys.
const (
	DataName     = "name"
	DataResetURL = "resetURL"
	DataService  = "service"
	DataAmount   = "amount"
	DataDueDate  = "dueDate"
	DataTotal    = "total"
	DataCount    = "count"
)

// Message is one notification to one recipient.
type Message struct {
	Kind Kind
	To   string
	Data map[string]string
}

// Result is the outcome of a send.
type Result struct {
	Kind Kind
	To   string
	Err  error
}

// OK reports whether the send succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// safeSend turns a panicking sender into a failed Result.
func safeSend(ctx context.Context, s Sender, msg Message) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Kind: msg.Kind, To: msg.To, Err: fmt.Errorf("sender panic: %v", p)}
		}
	}()
	return s.Send(ctx, msg)
}
