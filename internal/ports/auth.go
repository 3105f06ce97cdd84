// Package ports defines interfaces (hexagonal ports) for identity, session and profile behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.
package ports

import (
	"context"
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a federated authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// CreateIdentityInput describes a new password identity.
type CreateIdentityInput struct {
	Email       string
	Password    string
	DisplayName string
}

// IdentityProvider verifies credentials and manages password identities.
// Errors are returned unmodified to the sign-in boundary, which classifies them.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (domainauth.Identity, error)
	CreateIdentity(ctx context.Context, in CreateIdentityInput) (domainauth.Identity, error)
	LookupByEmail(ctx context.Context, email string) (domainauth.Identity, error)
	SetPassword(ctx context.Context, identityID, password string) error
	SetDisabled(ctx context.Context, identityID string, disabled bool) error
}

// SessionStore persists and retrieves login sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// Subscription is a registered feed callback. Close releases it and waits for an in-flight
// callback; no callback runs after Close returns.
type Subscription interface {
	Close() error
}

// IdentityFeed carries sign-in and sign-out transitions for one login session.
// A nil identity means the principal signed out.
type IdentityFeed interface {
	PublishIdentity(ctx context.Context, sessionID string, id *domainauth.Identity) error
	SubscribeIdentity(ctx context.Context, sessionID string, fn func(*domainauth.Identity)) (Subscription, error)
}

// ResetTokenStore issues and redeems single-use password reset tokens.
type ResetTokenStore interface {
	Issue(ctx context.Context, identityID string, ttl time.Duration) (string, error)
	// Redeem returns the identity id for a token and invalidates it.
	Redeem(ctx context.Context, token string) (string, error)
}

// Message is an outgoing email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers outgoing email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
