package notify

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
)

// LogSender writes notifications to the log instead of mailing them. It is
// used when no SMTP host is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "notify")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) Result {
	subject, body, err := compose(msg)
	if err != nil {
		return Result{Kind: msg.Kind, To: msg.To, Err: err}
	}
	s.log.Info(ctx, "notification", "kind", msg.Kind, "to", msg.To, "subject", subject)
	s.log.Debug(ctx, "notification body", "kind", msg.Kind, "body", body)
	return Result{Kind: msg.Kind, To: msg.To}
}
