package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/ports"
	"golang.org/x/oauth2"
)

// newDiscoveryServer serves a discovery document whose token endpoint is unreachable.
func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: "https://idp.lms.test/auth",
			TokenEndpoint:         "http://127.0.0.1:1/token",
			UserinfoEndpoint:      "https://idp.lms.test/userinfo",
			JwksURI:               "https://idp.lms.test/jwks",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(discoveryURL string) ProviderConfig {
	return ProviderConfig{
		ClientID:     "lms-gateway",
		ClientSecret: "s3cret",
		RedirectURL:  "http://localhost:8080/auth/sso/callback",
		Scope:        "openid profile email",
		DiscoveryURL: discoveryURL,
		LogoutURL:    "https://idp.lms.test/logout",
	}
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(testConfig(newDiscoveryServer(t).URL))
	require.NoError(t, err)
	return provider
}

func TestNewProvider_Discovery(t *testing.T) {
	srv := newDiscoveryServer(t)
	provider, err := NewProvider(testConfig(srv.URL + "/.well-known/openid-configuration"))
	require.NoError(t, err)

	assert.Equal(t, "https://idp.lms.test/logout", provider.LogoutURL())
	assert.Equal(t, "https://idp.lms.test/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, "http://127.0.0.1:1/token", provider.config.Endpoint.TokenURL)
}

func TestNewProvider_RequiredSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
		errMsg string
	}{
		{name: "client id", mutate: func(c *ProviderConfig) { c.ClientID = "" }, errMsg: "client ID is required"},
		{name: "client secret", mutate: func(c *ProviderConfig) { c.ClientSecret = "" }, errMsg: "client secret is required"},
		{name: "redirect url", mutate: func(c *ProviderConfig) { c.RedirectURL = "" }, errMsg: "redirect URL is required"},
		{name: "discovery url", mutate: func(c *ProviderConfig) { c.DiscoveryURL = "" }, errMsg: "discovery URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://idp.invalid")
			tt.mutate(&cfg)
			_, err := NewProvider(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	provider := newTestProvider(t)

	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{
		RedirectURL: "http://localhost:8080/auth/sso/callback",
	})
	require.NoError(t, err)
	assert.Contains(t, authURL, "https://idp.lms.test/auth")
	assert.Contains(t, authURL, "client_id=lms-gateway")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)
	assert.NotEqual(t, state, nonce)

	_, _, _, err = provider.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestProvider_Exchange(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{name: "missing code", input: ports.ExchangeInput{State: "s", Nonce: "n"}, errMsg: "authorization code is required"},
		{name: "missing state", input: ports.ExchangeInput{Code: "c", Nonce: "n"}, errMsg: "state is required"},
		{name: "missing nonce", input: ports.ExchangeInput{Code: "c", State: "s"}, errMsg: "nonce is required"},
		{name: "token endpoint down", input: ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"}, errMsg: "exchange code for token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Exchange(ctx, tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := generateRandomString(32)
	require.NoError(t, err)
	b, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tests := []struct {
		name    string
		tok     *oauth2.Token
		want    string
		wantErr string
	}{
		{name: "present", tok: (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"}), want: "abc.def.ghi"},
		{name: "missing", tok: (&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}), wantErr: "missing id_token"},
		{name: "nil", tok: nil, wantErr: "nil token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getIDTokenFromToken(tt.tok)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimPaths_Defaults(t *testing.T) {
	paths, err := ClaimPaths{}.withDefaults().compile()
	require.NoError(t, err)

	id := paths.identity(map[string]any{
		"sub":   "sub-123",
		"email": "ada@example.com",
		"name":  " Ada Lovelace ",
	})
	assert.Equal(t, domainauth.Identity{ID: "sub-123", Email: "ada@example.com", DisplayName: "Ada Lovelace"}, id)
}

func TestClaimPaths_Nested(t *testing.T) {
	paths, err := ClaimPaths{
		Subject: "samaccountname || sub",
		Email:   "emails",
		Name:    "profile.display",
	}.withDefaults().compile()
	require.NoError(t, err)

	id := paths.identity(map[string]any{
		"sub":     "sub-123",
		"emails":  []any{"", "first@example.com", "second@example.com"},
		"profile": map[string]any{"display": "Grace"},
	})
	assert.Equal(t, "sub-123", id.ID)
	assert.Equal(t, "first@example.com", id.Email)
	assert.Equal(t, "Grace", id.DisplayName)

	id = paths.identity(map[string]any{"sub": "sub-123", "samaccountname": "grace", "emails": 42})
	assert.Equal(t, "grace", id.ID)
	assert.Empty(t, id.Email, "non-string values are ignored")
	assert.Empty(t, id.DisplayName)
}

func TestClaimPaths_InvalidExpression(t *testing.T) {
	_, err := ClaimPaths{Email: "emails[?"}.withDefaults().compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email claim path")
}

func TestFillMissing_KeepsExisting(t *testing.T) {
	dst := domainauth.Identity{ID: "keep", Email: ""}
	fillMissing(&dst, domainauth.Identity{ID: "other", Email: "x@example.com", DisplayName: "X"})
	assert.Equal(t, domainauth.Identity{ID: "keep", Email: "x@example.com", DisplayName: "X"}, dst)
}
