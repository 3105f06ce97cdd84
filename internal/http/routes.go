package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/observability/metrics"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthServiceInterface    // Optional: sign-in routes are not mounted when nil
	Profiles ProfileServiceInterface // Optional: user routes are not mounted when nil
	Sessions *SessionLoader          // Required
	Policy   *access.Policy
	Metrics  *metrics.Access
	// Upstream receives page requests the route guard admits. Nil answers them with 404.
	Upstream     http.Handler
	Readiness    []ReadinessCheck
	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter creates and configures the gateway router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	guards := NewGuards(GuardsOptions{Sessions: services.Sessions, Policy: services.Policy, Metrics: services.Metrics})

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics.Handler())
	}

	registerAccessRoutes(mux, &AccessHandlers{
		Sessions: services.Sessions,
		Policy:   guards.Policy(),
		Metrics:  services.Metrics,
	})
	if services.Auth != nil {
		registerAuthRoutes(mux, &AuthHandlers{Svc: services.Auth, CookieDomain: services.CookieDomain, Logger: logger})
	}
	if services.Profiles != nil {
		registerUserRoutes(mux, &UserHandlers{Svc: services.Profiles}, guards)
	}
	registerPageRoutes(mux, services.Upstream, guards)

	return Recover(logger)(Logging(logger)(Instrument(services.Metrics)(mux)))
}

func registerAccessRoutes(mux *http.ServeMux, h *AccessHandlers) {
	mux.HandleFunc("GET /api/session", h.Session)
	mux.HandleFunc("GET /api/access/decide", h.Decide)
	mux.HandleFunc("GET /api/access/guard", h.Guard)
	mux.HandleFunc("GET /api/access/require", h.Require)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /auth/login", h.SignIn)
	mux.HandleFunc("POST /auth/logout", h.SignOut)
	mux.HandleFunc("POST /auth/password-reset", h.SendPasswordReset)
	mux.HandleFunc("POST /auth/password-reset/confirm", h.ConfirmPasswordReset)
	mux.HandleFunc("GET /auth/sso/login", h.SSOLogin)
	mux.HandleFunc("GET /auth/sso/callback", h.SSOCallback)
}

func registerUserRoutes(mux *http.ServeMux, h *UserHandlers, g *Guards) {
	admin := g.RequireRoles(domainauth.RoleAdmin)
	signedIn := g.RequireRoles(domainauth.AllRoles()...)

	mux.Handle("GET /api/users", admin(http.HandlerFunc(h.ListUsers)))
	mux.Handle("POST /api/users", admin(http.HandlerFunc(h.CreateUser)))
	mux.Handle("GET /api/users/{id}", signedIn(http.HandlerFunc(h.GetUser)))
	mux.Handle("PUT /api/users/{id}/role", admin(http.HandlerFunc(h.SetRole)))
}

func registerPageRoutes(mux *http.ServeMux, upstream http.Handler, g *Guards) {
	if upstream == nil {
		upstream = http.NotFoundHandler()
	}
	route := g.RouteGuard()
	// The staff subtrees run the route table first and then their own allow-list, both
	// against the same snapshot.
	mux.Handle("/", route(upstream))
	mux.Handle("/admin/", route(g.RoleGuard("", domainauth.RoleAdmin)(upstream)))
	mux.Handle("/lecturer/", route(g.RoleGuard("", domainauth.RoleLecturer, domainauth.RoleAdmin)(upstream)))
}
