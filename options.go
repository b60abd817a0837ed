package zoraprofiles

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/internal/core"
	"github.com/Keksclan/zoraprofiles/internal/settings"
	"github.com/Keksclan/zoraprofiles/middleware"
	"github.com/Keksclan/zoraprofiles/profiles"
	"github.com/Keksclan/zoraprofiles/tracing"
	"github.com/Keksclan/zoraprofiles/upstream"
)

// Option configures a Server.
type Option func(*config)

// WithAPIKey sets the upstream API key. Without one every aggregation
// request fails with a configuration error.
func WithAPIKey(key string) Option {
	return func(c *config) { c.upstream.APIKey = key }
}

// WithBaseURL points the upstream client at another API host.
func WithBaseURL(u string) Option {
	return func(c *config) { c.upstream.BaseURL = u }
}

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(hc upstream.HTTPClient) Option {
	return func(c *config) { c.upstream.HTTPClient = hc }
}

// WithFetcher replaces the upstream client entirely. The rate limit and
// circuit breaker options have no effect when it is used.
func WithFetcher(f profiles.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithLimits bounds the number of identifiers per request and the length of
// GET request URIs.
func WithLimits(maxHandles, urlMaxLength int) Option {
	return func(c *config) {
		c.http.MaxHandles = maxHandles
		c.http.URLMaxLength = urlMaxLength
	}
}

// WithAllowedOrigins sets the CORS allow-list. The first origin is the
// fallback sent to origins that are not listed.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *config) { c.http.AllowedOrigins = origins }
}

// WithConcurrency sets how many identifiers are looked up in parallel.
func WithConcurrency(n int) Option {
	return func(c *config) { c.profiles.Concurrency = n }
}

// WithCoinsCount sets how many created coins are fetched per identifier.
func WithCoinsCount(n int) Option {
	return func(c *config) { c.profiles.CoinsCount = n }
}

// WithRetry configures the resilient upstream call: a per-attempt timeout,
// the number of retries after the first attempt, and the backoff base and
// jitter.
func WithRetry(timeout time.Duration, retries int, base, jitter time.Duration) Option {
	return func(c *config) {
		c.profiles.Retry.AttemptTimeout = timeout
		c.profiles.Retry.MaxAttempts = retries + 1
		c.profiles.Retry.BaseDelay = base
		c.profiles.Retry.Jitter = jitter
	}
}

// WithCache sets the TTL and capacity of the response cache.
func WithCache(ttl time.Duration, maxEntries int) Option {
	return func(c *config) {
		c.profiles.CacheTTL = ttl
		c.profiles.CacheMaxEntries = maxEntries
	}
}

// WithRistrettoCache switches the response cache to the ristretto-backed
// store. Its eviction is approximate; use it for large capacities.
func WithRistrettoCache() Option {
	return func(c *config) { c.cacheBackend = settings.CacheRistretto }
}

// WithUpstreamRateLimit caps outbound upstream requests at rps per second
// with the given burst.
func WithUpstreamRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.upstreamRPS = rps
		c.upstreamBurst = burst
	}
}

// WithCircuitBreaker opens the upstream circuit after failures consecutive
// upstream failures and keeps it open for openTimeout.
func WithCircuitBreaker(failures int, openTimeout time.Duration) Option {
	return func(c *config) {
		c.breakerFailures = failures
		c.breakerOpen = openTimeout
	}
}

// WithLogger sets the logger used by the server, the access log and the
// aggregation service.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers the service collectors with reg, adds request
// metrics, and makes [Server.MetricsHandler] serve reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithOpenTelemetry enables server spans for every request and client spans
// for upstream calls.
func WithOpenTelemetry(cfg tracing.TracingConfig) Option {
	return func(c *config) { c.tracing = &cfg }
}

// WithRecovery turns handler panics into JSON 500 responses.
func WithRecovery() Option {
	return func(c *config) { c.middlewares.Replace(core.OrderRecovery, middleware.Recover()) }
}

// WithMiddleware adds custom middleware in front of the handler, after all
// built-in middleware.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(c *config) { c.middlewares.Add(core.OrderCustom, mw) }
}

// FromSettings translates loaded settings into options.
func FromSettings(s settings.Settings) []Option {
	opts := []Option{
		WithAPIKey(s.APIKey),
		WithBaseURL(s.BaseURL),
		WithLimits(s.MaxHandles, s.URLMaxLength),
		WithAllowedOrigins(s.AllowedOrigins...),
		WithConcurrency(s.Concurrency),
		WithCoinsCount(s.CoinsCount),
		WithRetry(s.Timeout, s.Retries, s.BackoffBase, s.BackoffJitter),
		WithCache(s.CacheTTL, s.CacheMaxEntries),
	}
	if s.CacheBackend == settings.CacheRistretto {
		opts = append(opts, WithRistrettoCache())
	}
	if s.UpstreamRPS > 0 {
		opts = append(opts, WithUpstreamRateLimit(s.UpstreamRPS, s.UpstreamBurst))
	}
	if s.BreakerFailures > 0 {
		opts = append(opts, WithCircuitBreaker(s.BreakerFailures, s.BreakerOpen))
	}
	return opts
}
