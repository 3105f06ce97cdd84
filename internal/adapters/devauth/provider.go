package devauth

// Package devauth provides a config-driven AuthProvider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/ports"
)

var _ ports.AuthProvider = (*Provider)(nil)

// Config controls the dev auth provider behavior. DisplayName is optional.
type Config struct {
	IdentityID  string
	Email       string
	DisplayName string
}

// Provider implements ports.AuthProvider for local development.
// Begin redirects straight back to the local callback with generated state and nonce;
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	identity domainauth.Identity
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.IdentityID == "" {
		return nil, errors.New("dev auth: IdentityID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Provider{
		identity: domainauth.Identity{
			ID:          cfg.IdentityID,
			Email:       cfg.Email,
			DisplayName: cfg.DisplayName,
		},
	}, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	return "/auth/sso/callback?code=dev&state=" + state, state, nonce, nil
}

// Exchange returns the dev identity. State validation happens in the callback handler.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	return p.identity, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
