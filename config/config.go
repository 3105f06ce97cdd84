package config

import (
	"errors"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication configuration
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - access.go: Route policy and session controller configuration
//   - mail.go: Outgoing mail configuration
type AppConfig struct {
	// IsDev controls development mode behavior (mock auth allowed, log mailer default).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Access policy and session controller configuration
	Access AccessConfig `envPrefix:"ACCESS_"`

	// Outgoing mail configuration
	Mail MailConfig

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	// Check NODE_ENV for dev mode
	c.detectDevMode()

	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Access.Sanitize()
	c.Mail.Sanitize(c.IsDev)
}

// Validate reports configuration combinations that cannot start.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Auth.Mode == AuthModeMock && !c.IsDev {
		errs = append(errs, errors.New("AUTH_MODE=mock requires DEV=true"))
	}
	if c.Auth.Mode == AuthModeOAuth {
		if err := c.Auth.OAuth.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Mail.Provider == MailProviderSendGrid && c.Mail.SendGridAPIKey == "" {
		errs = append(errs, errors.New("MAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY"))
	}
	return errors.Join(errs...)
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
