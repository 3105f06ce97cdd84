package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/lms-access/config"
	"github.com/target/lms-access/internal/observability/metrics"
	"golang.org/x/sync/errgroup"
)

// RunConfig groups what Run needs from main.
type RunConfig struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// Run wires the gateway and serves it until ctx is canceled or a component fails.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := cfg.Logger

	var m *metrics.Access
	if cfg.Config.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	stores, err := BuildStores(StoreDeps{DB: cfg.DB, Redis: cfg.Redis, Config: cfg.Config, Logger: logger})
	if err != nil {
		return err
	}
	federated, err := BuildFederatedProvider(cfg.Config.Auth, logger)
	if err != nil {
		return err
	}
	mail, err := BuildMailer(cfg.Config.Mail, logger)
	if err != nil {
		return err
	}

	services, err := NewServices(ServiceDeps{
		Config:    cfg.Config,
		Stores:    stores,
		Federated: federated,
		Mailer:    mail,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	srv, err := NewHTTPServer(HTTPServerConfig{
		Config:   cfg.Config,
		Services: services,
		Checks:   ReadinessChecks(cfg.DB, cfg.Redis),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, srv, logger) })
	g.Go(func() error {
		// Controllers hold Redis subscriptions; release them before the client closes.
		<-gctx.Done()
		services.Registry.Close()
		logger.Info("session controllers closed")
		return nil
	})
	return g.Wait()
}
