package config

import "time"

// AccessConfig tunes route policy and per-session controllers.
type AccessConfig struct {
	// RouteTableFile is a YAML route table. Empty uses the built-in table.
	RouteTableFile string `env:"ROUTE_TABLE_FILE"`

	// SettleTimeout bounds how long a request waits for a session to settle
	// before it is answered as loading.
	SettleTimeout time.Duration `env:"SETTLE_TIMEOUT" envDefault:"3s"`

	// ControllerCacheSize caps live session controllers on one replica.
	ControllerCacheSize int `env:"CONTROLLER_CACHE_SIZE" envDefault:"10000"`

	// ControllerLifetime closes a controller this long after it was opened, in use or not.
	// The next request rebuilds it from the session store.
	ControllerLifetime time.Duration `env:"CONTROLLER_LIFETIME" envDefault:"30m"`

	// SessionRecheckInterval is how often a cached controller re-reads its login session.
	SessionRecheckInterval time.Duration `env:"SESSION_RECHECK_INTERVAL" envDefault:"30s"`

	// LiveRoleUpdates re-resolves open sessions when their profile changes.
	LiveRoleUpdates bool `env:"LIVE_ROLE_UPDATES" envDefault:"true"`
}

// Sanitize applies guardrails to access configuration values.
func (a *AccessConfig) Sanitize() {
	if a.SettleTimeout < 100*time.Millisecond {
		a.SettleTimeout = 100 * time.Millisecond
	}
	if a.SettleTimeout > 30*time.Second {
		a.SettleTimeout = 30 * time.Second
	}
	if a.ControllerCacheSize < 1 {
		a.ControllerCacheSize = 1
	}
	if a.ControllerLifetime < time.Minute {
		a.ControllerLifetime = time.Minute
	}
	if a.SessionRecheckInterval < time.Second {
		a.SessionRecheckInterval = time.Second
	}
}
