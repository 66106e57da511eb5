package notify

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig is the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends plain-text mail through gomail.
type SMTPSender struct {
	from   string
	dialer mailDialer
}

func NewSMTPSender(c SMTPConfig) *SMTPSender {
	return &SMTPSender{
		from:   c.From,
		dialer: gomail.NewDialer(c.Host, c.Port, c.Username, c.Password),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	res := Result{Kind: msg.Kind, To: msg.To}
	if msg.To == "" {
		res.Err = errors.New("no recipient specified")
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	subject, body, err := compose(msg)
	if err != nil {
		res.Err = err
		return res
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	res.Err = s.dialer.DialAndSend(m)
	return res
}
