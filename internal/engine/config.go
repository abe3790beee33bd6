package engine

import (
	"log/slog"
	"time"
)

// defaultRequestTTL is the method TTL named in §4.5 for every request this
// engine sends: subscribe, update, delete, message response, watch.
const defaultRequestTTL = 86400 * time.Second

// Config holds the engine's tunables. There is no main() or CLI for this
// library (the flag/env-var configuration this codebase uses elsewhere has
// nothing to bind to here), so Config is assembled via functional Options
// instead, the idiomatic library-side analogue.
type Config struct {
	Logger             *slog.Logger
	RequestTTL         time.Duration
	NotifyServerDomain string
	KeyserverURL       string
	ForceCleanupAfter  time.Duration
}

// Option mutates a Config at construction time.
type Option func(*Config)

// WithLogger overrides the engine's structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithExpiryTTLs overrides the request ledger TTL applied to every outgoing
// request (§4.5 names a single 86400s value for all methods).
func WithExpiryTTLs(ttl time.Duration) Option {
	return func(c *Config) { c.RequestTTL = ttl }
}

// WithNotifyServerDomain sets the domain watchSubscriptions resolves the
// notify server's identity from.
func WithNotifyServerDomain(domain string) Option {
	return func(c *Config) { c.NotifyServerDomain = domain }
}

// WithKeyserverURL overrides the `ksu` claim value.
func WithKeyserverURL(url string) Option {
	return func(c *Config) { c.KeyserverURL = url }
}

// WithForceCleanup sets the engine-wide default for DeleteSubscription's
// best-effort local-cleanup window (§9 Open Question — delete vs. reconcile).
// Zero (the default) preserves the literal spec behavior: local state is
// torn down only on a server-confirmed subscriptions_changed.
func WithForceCleanup(d time.Duration) Option {
	return func(c *Config) { c.ForceCleanupAfter = d }
}

func defaultConfig() Config {
	return Config{
		Logger:             slog.Default(),
		RequestTTL:         defaultRequestTTL,
		NotifyServerDomain: "notify.walletconnect.com",
		KeyserverURL:       "https://keys.walletconnect.com",
		ForceCleanupAfter:  0,
	}
}
