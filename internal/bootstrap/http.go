package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/lms-access/config"
	httpx "github.com/target/lms-access/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Checks   []httpx.ReadinessCheck
	Logger   *slog.Logger
}

// NewHTTPServer builds the gateway handler and wraps it in an unstarted server.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	upstream, err := buildUpstream(appCfg.HTTP.UpstreamURL, logger)
	if err != nil {
		return nil, err
	}

	loader := httpx.NewSessionLoader(httpx.SessionLoaderOptions{
		Reader:        cfg.Services.Registry,
		SettleTimeout: appCfg.Access.SettleTimeout,
		Logger:        logger,
	})

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:         cfg.Services.Auth,
		Profiles:     cfg.Services.Profiles,
		Sessions:     loader,
		Policy:       cfg.Services.Policy,
		Metrics:      cfg.Services.Metrics,
		Upstream:     upstream,
		Readiness:    cfg.Checks,
		CookieDomain: appCfg.HTTP.CookieDomain,
		Logger:       logger,
	})

	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func buildUpstream(raw string, logger *slog.Logger) (http.Handler, error) {
	if raw == "" {
		logger.Warn("HTTP_UPSTREAM_URL not set; admitted pages will return 404")
		return nil, nil
	}
	target, err := url.Parse(raw)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid HTTP_UPSTREAM_URL %q", raw)
	}
	return httpx.NewUpstreamProxy(target, logger), nil
}

// ReadinessChecks probes Postgres and Redis.
func ReadinessChecks(db *sql.DB, rdb redis.UniversalClient) []httpx.ReadinessCheck {
	return []httpx.ReadinessCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
}

// serveHTTP runs srv until ctx is canceled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
