package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/lms-access/config"
	"github.com/target/lms-access/internal/adapters/devauth"
	"github.com/target/lms-access/internal/adapters/mailer"
	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/observability/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Auth: config.AuthConfig{
			Mode:       config.AuthModePassword,
			SessionTTL: time.Hour,
		},
		HTTP:   config.HTTPConfig{Addr: "127.0.0.1:0", BaseURL: "https://lms.example.com"},
		Access: config.AccessConfig{SettleTimeout: time.Second, LiveRoleUpdates: true},
		Redis:  config.RedisConfig{KeyPrefix: "test:"},
	}
	cfg.Sanitize()
	return cfg
}

func newTestStores(t *testing.T, cfg *config.AppConfig) (*Stores, *miniredis.Miniredis) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stores, err := BuildStores(StoreDeps{DB: db, Redis: rdb, Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	return stores, mr
}

func TestParseRouteTable(t *testing.T) {
	table, err := ParseRouteTable([]byte(`
routes:
  - pattern: /
    public: true
  - pattern: /catalog/*
    public: true
  - pattern: /grading/*
    roles: [lecturer, admin]
`))
	require.NoError(t, err)

	assert.True(t, table.Classify("/catalog/intro").Public)
	grading := table.Classify("/grading/c1")
	assert.False(t, grading.Public)
	assert.True(t, grading.Allows(domainauth.RoleLecturer))
	assert.False(t, grading.Allows(domainauth.RoleStudent))
}

func TestParseRouteTable_Errors(t *testing.T) {
	tests := map[string]string{
		"malformed":    "routes: [",
		"empty":        "routes: []",
		"unknown role": "routes:\n  - pattern: /x\n    roles: [dean]\n",
		"no slash":     "routes:\n  - pattern: x\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRouteTable([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadRouteTable(t *testing.T) {
	table, err := LoadRouteTable("")
	require.NoError(t, err)
	assert.False(t, table.Classify("/admin/users").Allows(domainauth.RoleStudent))

	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - pattern: /open/*\n    public: true\n"), 0o600))
	table, err = LoadRouteTable(path)
	require.NoError(t, err)
	assert.True(t, table.Classify("/open/page").Public)

	_, err = LoadRouteTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildFederatedProvider(t *testing.T) {
	logger := discardLogger()

	prov, err := BuildFederatedProvider(config.AuthConfig{Mode: config.AuthModePassword}, logger)
	require.NoError(t, err)
	assert.Nil(t, prov)

	prov, err = BuildFederatedProvider(config.AuthConfig{
		Mode:    config.AuthModeMock,
		DevAuth: config.DevAuthConfig{IdentityID: "dev-user", Email: "dev@example.com"},
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &devauth.Provider{}, prov)

	_, err = BuildFederatedProvider(config.AuthConfig{Mode: config.AuthModeMock}, logger)
	assert.Error(t, err, "mock mode needs a dev identity")

	_, err = BuildFederatedProvider(config.AuthConfig{Mode: config.AuthModeOAuth}, logger)
	assert.Error(t, err, "oauth mode needs client settings")
}

func TestBuildMailer(t *testing.T) {
	m, err := BuildMailer(config.MailConfig{Provider: config.MailProviderLog}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &mailer.Log{}, m)

	m, err = BuildMailer(config.MailConfig{
		Provider:       config.MailProviderSendGrid,
		SendGridAPIKey: "SG.key",
		FromEmail:      "no-reply@lms.example.com",
	}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &mailer.SendGrid{}, m)

	_, err = BuildMailer(config.MailConfig{Provider: config.MailProviderSendGrid}, discardLogger())
	assert.Error(t, err)
}

func TestBuildStores_UsesKeyPrefix(t *testing.T) {
	cfg := testConfig()
	stores, mr := newTestStores(t, cfg)

	token, err := stores.Resets.Issue(context.Background(), "u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:reset:"+token))
}

func TestNewServices(t *testing.T) {
	cfg := testConfig()
	stores, _ := newTestStores(t, cfg)

	services, err := NewServices(ServiceDeps{
		Config:  cfg,
		Stores:  stores,
		Mailer:  mailer.NewLog(discardLogger()),
		Metrics: metrics.New(nil),
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(services.Registry.Close)

	require.NotNil(t, services.Auth)
	require.NotNil(t, services.Profiles)
	d := services.Policy.Decide("/dashboard", access.AnonymousSnapshot())
	assert.Equal(t, access.DecisionRedirect, d.Kind)

	// With no cookie the router answers anonymously without touching a store.
	srv, err := NewHTTPServer(HTTPServerConfig{Config: cfg, Services: services, Logger: discardLogger()})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"anonymous"`)
}

func TestNewServices_BadRouteTable(t *testing.T) {
	cfg := testConfig()
	cfg.Access.RouteTableFile = filepath.Join(t.TempDir(), "missing.yaml")
	stores, _ := newTestStores(t, cfg)

	_, err := NewServices(ServiceDeps{Config: cfg, Stores: stores, Mailer: mailer.NewLog(nil), Logger: discardLogger()})
	assert.Error(t, err)
}

func TestNewHTTPServer_InvalidUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.UpstreamURL = "not a url"
	_, err := NewHTTPServer(HTTPServerConfig{Config: cfg, Logger: discardLogger()})
	assert.Error(t, err)
}

func TestServeHTTP_StopsOnCancel(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, srv, discardLogger()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}
}
