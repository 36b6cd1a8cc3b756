package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LogTransport writes mails to the log instead of sending them.
type LogTransport struct {
	Logger log.Logger
}

func (t LogTransport) Send(_ context.Context, msg Message) error {
	logger := t.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return level.Info(logger).Log("msg", "mail", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
}

// SMTPTransport sends mails through an SMTP relay. Authentication is used
// when Username is set.
type SMTPTransport struct {
	Addr     string
	Username string
	Password string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (t SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var a smtp.Auth
	if t.Username != "" {
		host, _, err := net.SplitHostPort(t.Addr)
		if err != nil {
			return fmt.Errorf("smtp address: %w", err)
		}
		a = smtp.PlainAuth("", t.Username, t.Password, host)
	}
	send := t.sendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(t.Addr, a, msg.From, []string{msg.To}, formatMessage(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func formatMessage(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
