package oidc

// Package oidc provides the single sign-on AuthProvider backed by an OpenID Connect issuer.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.AuthProvider = (*Provider)(nil)

// ClaimPaths holds JMESPath expressions used to pull identity fields out of token and
// userinfo claims. Empty entries fall back to the standard OIDC claim names.
type ClaimPaths struct {
	Subject string
	Email   string
	Name    string
}

// DefaultClaimPaths maps the standard OIDC claims.
func DefaultClaimPaths() ClaimPaths {
	return ClaimPaths{Subject: "sub", Email: "email", Name: "name"}
}

func (c ClaimPaths) withDefaults() ClaimPaths {
	def := DefaultClaimPaths()
	if strings.TrimSpace(c.Subject) == "" {
		c.Subject = def.Subject
	}
	if strings.TrimSpace(c.Email) == "" {
		c.Email = def.Email
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	return c
}

type searchFunc func(data any) (any, error)

type compiledPaths struct {
	subject searchFunc
	email   searchFunc
	name    searchFunc
}

func compilePath(field, expr string) (searchFunc, error) {
	jp, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%s claim path %q: %w", field, expr, err)
	}
	return jp.Search, nil
}

func (c ClaimPaths) compile() (compiledPaths, error) {
	var out compiledPaths
	var err error
	if out.subject, err = compilePath("subject", c.Subject); err != nil {
		return out, err
	}
	if out.email, err = compilePath("email", c.Email); err != nil {
		return out, err
	}
	if out.name, err = compilePath("name", c.Name); err != nil {
		return out, err
	}
	return out, nil
}

// Provider implements the AuthProvider interface using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	logoutURL  string
	httpClient *http.Client
	paths      compiledPaths

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	Claims       ClaimPaths
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	paths, err := config.Claims.withDefaults().compile()
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{
		logoutURL:  config.LogoutURL,
		httpClient: httpClient,
		paths:      paths,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// LogoutURL returns the IdP end-session URL, if configured.
func (p *Provider) LogoutURL() string { return p.logoutURL }

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri must match the configured RedirectURL exactly, so it is not overridden here.
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	id, err := p.identityFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if id.ID == "" || id.Email == "" || id.DisplayName == "" {
		if fillErr := p.fillFromUserInfo(ctx, token.AccessToken, &id); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if id.ID == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}
	return id, nil
}

func (p *Provider) identityFromIDToken(
	ctx context.Context,
	tok *oauth2.Token,
	expectedNonce string,
) (domainauth.Identity, error) {
	if !p.hasOpenIDScope() {
		return domainauth.Identity{}, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return domainauth.Identity{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return domainauth.Identity{}, errors.New("invalid nonce")
	}
	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return p.paths.identity(claims), nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, id *domainauth.Identity) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims map[string]any
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillMissing(id, p.paths.identity(claims))
	return nil
}

// identity evaluates every claim path against claims. Paths that fail or yield a
// non-string value produce an empty field.
func (c compiledPaths) identity(claims map[string]any) domainauth.Identity {
	return domainauth.Identity{
		ID:          searchString(c.subject, claims),
		Email:       searchString(c.email, claims),
		DisplayName: searchString(c.name, claims),
	}
}

func searchString(search searchFunc, data map[string]any) string {
	if search == nil || data == nil {
		return ""
	}
	v, err := search(data)
	if err != nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []any:
		// First string in a list, e.g. an "emails" array.
		for _, item := range s {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// fillMissing copies fields from src into dst where dst is empty.
func fillMissing(dst *domainauth.Identity, src domainauth.Identity) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.DisplayName == "" {
		dst.DisplayName = src.DisplayName
	}
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
