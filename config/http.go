package config

import (
	"log/slog"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://lms.example.com").
	// Used for generating absolute links in password reset emails.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// UpstreamURL is the application server that admitted page requests are proxied to.
	// Empty answers admitted pages with 404.
	UpstreamURL string `env:"HTTP_UPSTREAM_URL" envDefault:""`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.UpstreamURL = strings.TrimSpace(h.UpstreamURL)

	domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
	if domain != "" && isPublicSuffix(domain) {
		slog.Warn("ignoring APP_COOKIE_DOMAIN: cookies cannot be scoped to a public suffix", "domain", domain)
		domain = ""
	}
	h.CookieDomain = domain
}

// ResetURL is the page that completes a password reset.
func (h HTTPConfig) ResetURL() string {
	return h.BaseURL + "/forgot-password"
}

func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}
