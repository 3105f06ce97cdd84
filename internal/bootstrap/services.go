package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/target/lms-access/config"
	"github.com/target/lms-access/internal/domain/access"
	"github.com/target/lms-access/internal/observability/metrics"
	"github.com/target/lms-access/internal/ports"
	"github.com/target/lms-access/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Profiles *service.ProfileService
	Registry *service.SessionRegistry
	Policy   *access.Policy
	Metrics  *metrics.Access
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config    *config.AppConfig
	Stores    *Stores
	Federated ports.AuthProvider // Optional
	Mailer    ports.Mailer
	Metrics   *metrics.Access // Optional
	Logger    *slog.Logger
}

// NewServices wires the resolver, the session registry and the services on top of stores.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config
	observer := service.Observer{Logger: deps.Logger, Metrics: deps.Metrics}

	routes, err := LoadRouteTable(cfg.Access.RouteTableFile)
	if err != nil {
		return ServiceContainer{}, err
	}

	resolver := service.NewProfileResolver(service.ProfileResolverOptions{
		Store:   deps.Stores.Profiles,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	})

	var profileFeed ports.ProfileFeed
	if cfg.Access.LiveRoleUpdates {
		profileFeed = deps.Stores.Feed
	}
	registry := service.NewSessionRegistry(service.SessionRegistryOptions{
		Sources: service.RegistrySources{
			Sessions:   deps.Stores.Sessions,
			Identities: deps.Stores.Feed,
		},
		Controller: service.SessionControllerOptions{
			Resolver: resolver,
			Profiles: profileFeed,
			Observer: observer,
		},
		Cache: service.RegistryCacheConfig{
			Size:            cfg.Access.ControllerCacheSize,
			Lifetime:        cfg.Access.ControllerLifetime,
			RecheckInterval: cfg.Access.SessionRecheckInterval,
		},
	})

	auth := service.NewAuthService(service.AuthServiceOptions{
		Identity: service.AuthBackends{
			Passwords: deps.Stores.Identities,
			Federated: deps.Federated,
			Resets:    deps.Stores.Resets,
			Mailer:    deps.Mailer,
		},
		Sessions: service.SessionBackends{
			Store:    deps.Stores.Sessions,
			Feed:     deps.Stores.Feed,
			Registry: registry,
		},
		Config: service.AuthConfig{
			SessionTTL: cfg.Auth.SessionTTL,
			ResetTTL:   cfg.Auth.PasswordResetTTL,
			ResetURL:   cfg.HTTP.ResetURL(),
			Observer:   observer,
		},
	})

	profiles := service.NewProfileService(service.ProfileServiceOptions{
		Backends: service.ProfileBackends{
			Store:      deps.Stores.Profiles,
			Feed:       deps.Stores.Feed,
			Identities: deps.Stores.Identities,
		},
		Observer: observer,
	})

	if deps.Logger != nil {
		deps.Logger.Info("services initialized",
			"auth_mode", cfg.Auth.Mode,
			"sso_enabled", deps.Federated != nil,
			"live_role_updates", cfg.Access.LiveRoleUpdates,
			"route_table", routeTableSource(cfg.Access.RouteTableFile),
		)
	}

	return ServiceContainer{
		Auth:     auth,
		Profiles: profiles,
		Registry: registry,
		Policy:   access.NewPolicy(routes),
		Metrics:  deps.Metrics,
	}, nil
}

func routeTableSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return fmt.Sprintf("file:%s", path)
}
