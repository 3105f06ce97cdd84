package config

import (
	"fmt"
	"strings"
)

// MailProvider selects how outgoing mail is delivered.
type MailProvider string

const (
	// MailProviderLog writes messages to the log instead of sending them.
	MailProviderLog MailProvider = "log"
	// MailProviderSendGrid sends through the SendGrid API.
	MailProviderSendGrid MailProvider = "sendgrid"
)

// UnmarshalText implements encoding.TextUnmarshaler for MailProvider.
func (m *MailProvider) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "", "log", "sendgrid":
		*m = MailProvider(v)
		return nil
	default:
		return fmt.Errorf("invalid MailProvider: %q (valid options: log, sendgrid)", v)
	}
}

// MailConfig contains outgoing mail configuration.
type MailConfig struct {
	// Provider defaults to sendgrid when an API key is set outside development, else log.
	Provider       MailProvider `env:"MAIL_PROVIDER"`
	SendGridAPIKey string       `env:"SENDGRID_API_KEY"`
	FromEmail      string       `env:"MAIL_FROM_EMAIL"  envDefault:"no-reply@lms.example.com"`
	FromName       string       `env:"MAIL_FROM_NAME"   envDefault:"LMS"`
}

// Sanitize fills the provider default for the run mode.
func (m *MailConfig) Sanitize(isDev bool) {
	m.SendGridAPIKey = strings.TrimSpace(m.SendGridAPIKey)
	if m.Provider != "" {
		return
	}
	if isDev || m.SendGridAPIKey == "" {
		m.Provider = MailProviderLog
		return
	}
	m.Provider = MailProviderSendGrid
}
