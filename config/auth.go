package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModePassword signs users in with email and password only.
	AuthModePassword AuthMode = "password"
	// AuthModeOAuth adds OAuth/OIDC single sign-on next to password sign-in.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev single sign-on (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "password", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: password, oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`

	// JMESPath expressions locating identity fields in the ID token claims.
	SubjectClaim string `env:"SUBJECT_CLAIM" envDefault:"sub"`
	EmailClaim   string `env:"EMAIL_CLAIM"   envDefault:"email"`
	NameClaim    string `env:"NAME_CLAIM"    envDefault:"name"`
}

// Validate reports missing provider settings.
func (o OAuthConfig) Validate() error {
	var missing []string
	if o.ClientID == "" {
		missing = append(missing, "OAUTH_CLIENT_ID")
	}
	if o.ClientSecret == "" {
		missing = append(missing, "OAUTH_CLIENT_SECRET")
	}
	if o.DiscoveryURL == "" {
		missing = append(missing, "OAUTH_DISCOVERY_URL")
	}
	if len(missing) > 0 {
		return errors.New("AUTH_MODE=oauth requires " + strings.Join(missing, ", "))
	}
	return nil
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	IdentityID  string `env:"IDENTITY_ID"  envDefault:"dev-user"`
	Email       string `env:"EMAIL"        envDefault:"dev@example.com"`
	DisplayName string `env:"DISPLAY_NAME" envDefault:"Dev User"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which single sign-on provider, if any, is mounted.
	// Password sign-in is available in every mode.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"password"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	SessionTTL        time.Duration `env:"SESSION_TTL"         envDefault:"8h"`
	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordResetTTL  time.Duration `env:"PASSWORD_RESET_TTL"  envDefault:"1h"`

	// SignInAttempts per email are allowed per SignInWindow. Zero disables throttling.
	SignInAttempts int           `env:"SIGNIN_ATTEMPTS" envDefault:"5"`
	SignInWindow   time.Duration `env:"SIGNIN_WINDOW"   envDefault:"1m"`
}

// Sanitize applies guardrails to authentication configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL < 5*time.Minute {
		a.SessionTTL = 5 * time.Minute
	}
	if a.PasswordMinLength < 8 {
		a.PasswordMinLength = 8
	}
	if a.PasswordResetTTL < time.Minute {
		a.PasswordResetTTL = time.Minute
	}
	if a.PasswordResetTTL > 24*time.Hour {
		a.PasswordResetTTL = 24 * time.Hour
	}
	if a.SignInAttempts < 0 {
		a.SignInAttempts = 0
	}
	if a.SignInWindow <= 0 {
		a.SignInWindow = time.Minute
	}
}
