// Package notify renders account mails and hands them to a transport.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/account"
)

// Message is a rendered plain-text mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

var templates = template.Must(template.New("mail").Parse(`
{{define "activation"}}Dear {{.Name}},

Your filmbase account has been created. Please open the link below to activate it:

{{.Link}}

Regards,
The filmbase team
{{end}}
{{define "creation"}}Dear {{.Name}},

Your filmbase account {{.Username}} is now active. Welcome aboard!

Regards,
The filmbase team
{{end}}
{{define "reset"}}Dear {{.Name}},

A password reset was requested for your filmbase account. Open the link below to choose a new password:

{{.Link}}

The link expires in 24 hours. If you did not ask for this, ignore this mail.

Regards,
The filmbase team
{{end}}`))

type mailData struct {
	Name     string
	Username string
	Link     string
}

// Mailer implements account.Notifier on top of a Transport. Delivery
// failures are logged and dropped.
type Mailer struct {
	transport Transport
	from      string
	baseURL   string
	logger    log.Logger
}

var _ account.Notifier = (*Mailer)(nil)

// NewMailer returns a mailer whose links point at baseURL.
func NewMailer(transport Transport, from, baseURL string, logger log.Logger) *Mailer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Mailer{
		transport: transport,
		from:      from,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

func (m *Mailer) SendActivationEmail(ctx context.Context, acct account.Account) {
	m.send(ctx, acct, "activation", "filmbase account activation", m.link("/account/activate", acct.ActivationKey))
}

func (m *Mailer) SendCreationEmail(ctx context.Context, acct account.Account) {
	m.send(ctx, acct, "creation", "filmbase account created", "")
}

func (m *Mailer) SendPasswordResetEmail(ctx context.Context, acct account.Account) {
	m.send(ctx, acct, "reset", "filmbase password reset", m.link("/account/reset/finish", acct.ResetKey))
}

func (m *Mailer) link(path, key string) string {
	return m.baseURL + path + "?key=" + url.QueryEscape(key)
}

func (m *Mailer) send(ctx context.Context, acct account.Account, tmpl, subject, link string) {
	if acct.Email == "" {
		level.Debug(m.logger).Log("msg", "email doesn't exist for user", "user", acct.Username)
		return
	}
	msg, err := m.render(acct, tmpl, subject, link)
	if err != nil {
		level.Error(m.logger).Log("msg", "render mail", "template", tmpl, "err", err)
		return
	}
	if err := m.transport.Send(ctx, msg); err != nil {
		level.Warn(m.logger).Log("msg", "mail could not be sent", "to", msg.To, "template", tmpl, "err", err)
		return
	}
	level.Debug(m.logger).Log("msg", "sent mail", "to", msg.To, "template", tmpl)
}

func (m *Mailer) render(acct account.Account, tmpl, subject, link string) (Message, error) {
	name := strings.TrimSpace(acct.FirstName + " " + acct.LastName)
	if name == "" {
		name = acct.Username
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, mailData{Name: name, Username: acct.Username, Link: link}); err != nil {
		return Message{}, fmt.Errorf("execute %s: %w", tmpl, err)
	}
	return Message{
		From:    m.from,
		To:      acct.Email,
		Subject: subject,
		Body:    body.String(),
	}, nil
}
