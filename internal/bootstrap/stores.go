package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/lms-access/config"
	"github.com/target/lms-access/internal/adapters/devauth"
	"github.com/target/lms-access/internal/adapters/mailer"
	"github.com/target/lms-access/internal/adapters/oidc"
	"github.com/target/lms-access/internal/adapters/passwordauth"
	redisadapter "github.com/target/lms-access/internal/adapters/redis"
	"github.com/target/lms-access/internal/data"
	"github.com/target/lms-access/internal/ports"
)

// Stores holds the adapters backing service ports.
type Stores struct {
	Profiles   *data.ProfileRepo
	Identities *passwordauth.Store
	Sessions   *redisadapter.SessionStore
	Resets     *redisadapter.ResetTokenStore
	Feed       *redisadapter.Feed
}

// StoreDeps are the connections and settings stores are built from.
type StoreDeps struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Config *config.AppConfig
	Logger *slog.Logger
}

// BuildStores creates the Postgres and Redis adapters.
func BuildStores(deps StoreDeps) (*Stores, error) {
	identities, err := passwordauth.New(passwordauth.Options{
		DB:                deps.DB,
		MinPasswordLength: deps.Config.Auth.PasswordMinLength,
		Attempts:          deps.Config.Auth.SignInAttempts,
		Window:            deps.Config.Auth.SignInWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity store: %w", err)
	}

	prefix := deps.Config.Redis.KeyPrefix
	return &Stores{
		Profiles:   data.NewProfileRepo(deps.DB),
		Identities: identities,
		Sessions:   redisadapter.NewSessionStore(deps.Redis, redisadapter.WithSessionPrefix(prefix+"session:")),
		Resets:     redisadapter.NewResetTokenStore(deps.Redis, prefix),
		Feed:       redisadapter.NewFeed(redisadapter.FeedOptions{Client: deps.Redis, Prefix: prefix, Logger: deps.Logger}),
	}, nil
}

// BuildFederatedProvider returns the single sign-on provider for the auth mode, or nil
// when only password sign-in is enabled.
//
//nolint:ireturn // the provider depends on AUTH_MODE.
func BuildFederatedProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.AuthProvider, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		logger.Warn("mock single sign-on enabled; every SSO login signs in as the dev identity",
			"identity_id", cfg.DevAuth.IdentityID)
		prov, err := devauth.NewProvider(devauth.Config{
			IdentityID:  cfg.DevAuth.IdentityID,
			Email:       cfg.DevAuth.Email,
			DisplayName: cfg.DevAuth.DisplayName,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		return prov, nil

	case config.AuthModeOAuth:
		o := cfg.OAuth
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURL,
			Scope:        o.Scope,
			DiscoveryURL: o.DiscoveryURL,
			LogoutURL:    o.LogoutURL,
			Claims:       oidc.ClaimPaths{Subject: o.SubjectClaim, Email: o.EmailClaim, Name: o.NameClaim},
		})
		if err != nil {
			return nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		return prov, nil

	default:
		return nil, nil
	}
}

// BuildMailer returns the configured outgoing mail adapter.
//
//nolint:ireturn // the mailer depends on MAIL_PROVIDER.
func BuildMailer(cfg config.MailConfig, logger *slog.Logger) (ports.Mailer, error) {
	if cfg.Provider != config.MailProviderSendGrid {
		return mailer.NewLog(logger), nil
	}
	m, err := mailer.NewSendGrid(mailer.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	})
	if err != nil {
		return nil, fmt.Errorf("create sendgrid mailer: %w", err)
	}
	return m, nil
}
