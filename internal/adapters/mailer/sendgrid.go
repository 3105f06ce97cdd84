// Package mailer delivers outgoing email through SendGrid, or to the log in development.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/target/lms-access/internal/ports"
)

const (
	defaultSendgridHost = "https://api.sendgrid.com"
	sendgridEndpoint    = "/v3/mail/send"
)

var _ ports.Mailer = (*SendGrid)(nil)

// SendGridConfig configures the SendGrid mailer.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host, mainly for tests.
	Host string
}

// SendGrid sends mail through the SendGrid v3 API.
type SendGrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGrid creates a SendGrid mailer.
func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid: API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("sendgrid: from email is required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultSendgridHost
	}
	m := &SendGrid{
		key:  cfg.APIKey,
		host: host,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
	if cfg.FromName != "" {
		m.subjPrefix = "[" + cfg.FromName + "] "
	}
	return m, nil
}

func (m *SendGrid) prepare(msg ports.Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	if msg.Text != "" {
		v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return v3
}

// Send delivers msg synchronously.
func (m *SendGrid) Send(ctx context.Context, msg ports.Message) error {
	if msg.ToEmail == "" {
		return errors.New("sendgrid: recipient is required")
	}
	if msg.Text == "" && msg.HTML == "" {
		return errors.New("sendgrid: message has no content")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
