package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/observability/metrics"
	"github.com/target/lms-access/internal/ports"
)

// Sign-in methods used as metric labels.
const (
	SignInMethodPassword = "password"
	SignInMethodSSO      = "sso"
)

const (
	defaultSessionTTL = 8 * time.Hour
	defaultResetTTL   = time.Hour
)

var (
	errPasswordAuthDisabled = apperrors.Validation("password sign-in is not enabled")
	errSSODisabled          = apperrors.Validation("single sign-on is not enabled")
)

// AuthBackends are the identity-side collaborators. Any of them may be nil when the
// corresponding flow is disabled.
type AuthBackends struct {
	Passwords ports.IdentityProvider
	Federated ports.AuthProvider
	Resets    ports.ResetTokenStore
	Mailer    ports.Mailer
}

// SessionBackends persist login sessions and fan out identity transitions.
type SessionBackends struct {
	Store    ports.SessionStore // Required
	Feed     ports.IdentityFeed // Required
	Registry *SessionRegistry   // Optional: drives the local controller on sign-out
}

// AuthConfig tunes AuthService.
type AuthConfig struct {
	SessionTTL time.Duration
	ResetTTL   time.Duration
	// ResetURL is the page that completes a password reset; the token is appended as ?token=.
	ResetURL string
	Observer Observer
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Identity AuthBackends
	Sessions SessionBackends
	Config   AuthConfig
}

// AuthService orchestrates sign-in, sign-out, federated login and password reset.
type AuthService struct {
	identity AuthBackends
	sessions SessionBackends
	cfg      AuthConfig
	logger   *slog.Logger
	metrics  *metrics.Access
	now      func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Sessions.Store == nil || opts.Sessions.Feed == nil {
		panic("AuthService requires a session Store and Feed")
	}
	cfg := opts.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	logger := cfg.Observer.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		identity: opts.Identity,
		sessions: opts.Sessions,
		cfg:      cfg,
		logger:   logger.With("component", "auth_service"),
		metrics:  cfg.Observer.Metrics,
		now:      time.Now,
	}
}

// SignInResult is a freshly created login session.
type SignInResult struct {
	Session  domainauth.Session
	Identity domainauth.Identity
}

// SignIn verifies credentials with the identity provider and opens a login session.
// Provider errors are returned unmodified.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	if s.identity.Passwords == nil {
		return nil, errPasswordAuthDisabled
	}
	id, err := s.identity.Passwords.SignIn(ctx, email, password)
	s.metrics.ObserveSignIn(SignInMethodPassword, err)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, id)
}

func (s *AuthService) startSession(ctx context.Context, id domainauth.Identity) (*SignInResult, error) {
	now := s.now()
	sess := domainauth.Session{
		ID:          uuid.NewString(),
		IdentityID:  id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	// The session is already readable; a controller seeded from the store does not
	// depend on this event.
	if err := s.sessions.Feed.PublishIdentity(ctx, sess.ID, &id); err != nil {
		s.logger.WarnContext(ctx, "publish sign-in failed", "session_id", sess.ID, "error", err)
	}
	return &SignInResult{Session: sess, Identity: id}, nil
}

// BeginLoginResult contains the result of beginning a federated login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a federated flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.identity.Federated == nil {
		return nil, errSSODisabled
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.identity.Federated.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a federated login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges the authorization code for an identity and opens a login session.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (*SignInResult, error) {
	if s.identity.Federated == nil {
		return nil, errSSODisabled
	}
	if in.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if in.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if in.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	id, err := s.identity.Federated.Exchange(ctx, ports.ExchangeInput(in))
	s.metrics.ObserveSignIn(SignInMethodSSO, err)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return s.startSession(ctx, id)
}

// SignOut ends a login session. The local controller is Anonymous before SignOut
// returns; other replicas learn about it through the identity feed.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if s.sessions.Registry != nil {
		if c, ok := s.sessions.Registry.Peek(sessionID); ok {
			c.SignOut()
		}
	}

	var errs []error
	if err := s.sessions.Store.Delete(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	if err := s.sessions.Feed.PublishIdentity(ctx, sessionID, nil); err != nil {
		s.logger.WarnContext(ctx, "publish sign-out failed", "session_id", sessionID, "error", err)
	}
	return errors.Join(errs...)
}

// SendPasswordReset mails a single-use reset link. Unknown emails succeed silently so
// callers cannot probe for accounts.
func (s *AuthService) SendPasswordReset(ctx context.Context, email string) error {
	if s.identity.Passwords == nil || s.identity.Resets == nil || s.identity.Mailer == nil {
		return errPasswordAuthDisabled
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}

	id, err := s.identity.Passwords.LookupByEmail(ctx, email)
	if apperrors.IsNotFound(err) {
		s.logger.InfoContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup identity: %w", err)
	}

	token, err := s.identity.Resets.Issue(ctx, id.ID, s.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	msg := ports.Message{
		ToEmail: id.Email,
		ToName:  id.DisplayName,
		Subject: "Reset your password",
		Text:    resetMessage(s.resetLink(token), s.cfg.ResetTTL),
	}
	if err := s.identity.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *AuthService) resetLink(token string) string {
	base := s.cfg.ResetURL
	if base == "" {
		base = "/forgot-password"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func resetMessage(link string, ttl time.Duration) string {
	return fmt.Sprintf(
		"Someone asked to reset the password for your account.\n\n"+
			"Open this link to choose a new password:\n%s\n\n"+
			"The link expires in %s and can be used once. If you did not ask for this, ignore this email.\n",
		link, ttl,
	)
}

// ConfirmPasswordReset redeems a reset token and sets the new password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if s.identity.Passwords == nil || s.identity.Resets == nil {
		return errPasswordAuthDisabled
	}
	identityID, err := s.identity.Resets.Redeem(ctx, token)
	if err != nil {
		return err
	}
	if err := s.identity.Passwords.SetPassword(ctx, identityID, password); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}
