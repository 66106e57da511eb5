// Command admin runs operator tasks against the SubKeeper stores. Deletions
// it performs are archived with the system actor.
//
// Usage:
//
//	admin delete-user -id <user id> [-reason text]
//	admin resync -id <user id>
//	admin report -id <user id>
//	admin remind -id <user id> [-within 72h]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// task is one operator command bound to a running app.
type task struct {
	name   string
	userID string
	reason string
	within time.Duration
}

func parseTask(args []string) (*task, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: admin <delete-user|resync|report|remind> -id <user id>")
	}
	t := &task{name: args[0]}

	fs := flag.NewFlagSet(t.name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&t.userID, "id", "", "user id")
	fs.StringVar(&t.reason, "reason", "", "deletion reason")
	fs.DurationVar(&t.within, "within", 72*time.Hour, "reminder window")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	switch t.name {
	case "delete-user", "resync", "report", "remind":
	default:
		return nil, fmt.Errorf("unknown command %q", t.name)
	}
	if t.userID == "" {
		return nil, fmt.Errorf("%s: -id is required", t.name)
	}
	return t, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	t, err := parseTask(args)
	if err != nil {
		return err
	}

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer app.Close()

	switch t.name {
	case "delete-user":
		snap, err := app.Accounts().SystemDeleteAccount(ctx, t.userID, t.reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted user %s (%d subscriptions, %s/month) archived as %s\n",
			t.userID, snap.SubscriptionCount, snap.TotalSpent.StringFixed(2), snap.ID)
	case "resync":
		if err := app.Accounts().Resync(ctx, t.userID); err != nil {
			return err
		}
		fmt.Fprintf(out, "registry of %s resynced\n", t.userID)
	case "report":
		if err := app.Accounts().SendMonthlyReport(ctx, t.userID); err != nil {
			return err
		}
		fmt.Fprintf(out, "monthly report sent to %s\n", t.userID)
	case "remind":
		n, err := app.Subscriptions().SendPaymentReminders(ctx, t.userID, t.within)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d payment reminders queued for %s\n", n, t.userID)
	}
	return nil
}
