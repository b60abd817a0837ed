// Package settings loads the service configuration from the environment
// (and, for the CLI, from flags bound into the same viper instance).
package settings

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	KeyAPIKey          = "ZORA_API_KEY"
	KeyBaseURL         = "ZORA_API_BASE_URL"
	KeyMaxHandles      = "MAX_HANDLES"
	KeyURLMaxLength    = "URL_MAX_LENGTH"
	KeyConcurrency     = "CONCURRENCY"
	KeyTimeoutMs       = "TIMEOUT_MS"
	KeyRetries         = "RETRIES"
	KeyBackoffBaseMs   = "BACKOFF_BASE_MS"
	KeyBackoffJitterMs = "BACKOFF_JITTER_MS"
	KeyCacheTTLMs      = "CACHE_TTL_MS"
	KeyCacheMaxEntries = "CACHE_MAX_ENTRIES"
	KeyCacheBackend    = "CACHE_BACKEND"
	KeyCoinsCount      = "COINS_COUNT"
	KeyAllowedOrigins  = "ALLOWED_ORIGINS"
	KeyUpstreamRPS     = "UPSTREAM_RPS"
	KeyUpstreamBurst   = "UPSTREAM_BURST"
	KeyBreakerFailures = "BREAKER_FAILURES"
	KeyBreakerOpenMs   = "BREAKER_OPEN_MS"
	KeyLogLevel        = "LOG_LEVEL"
	KeyOTelStdout      = "OTEL_STDOUT"
	KeyAddr            = "ADDR"
	KeyHost            = "HOST"
	KeyPort            = "PORT"
)

// Cache backends.
const (
	CacheLRU       = "lru"
	CacheRistretto = "ristretto"
)

// Settings is the fully resolved configuration.
type Settings struct {
	APIKey  string
	BaseURL string

	MaxHandles     int
	URLMaxLength   int
	AllowedOrigins []string

	Concurrency   int
	CoinsCount    int
	Timeout       time.Duration
	Retries       int
	BackoffBase   time.Duration
	BackoffJitter time.Duration

	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheBackend    string

	UpstreamRPS     float64
	UpstreamBurst   int
	BreakerFailures int
	BreakerOpen     time.Duration

	LogLevel   string
	OTelStdout bool
	Addr       string
}

// New returns a viper instance with every default set and the environment
// bound. Callers may bind flags to it before passing it to [FromViper].
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBaseURL, "https://api-sdk.zora.engineering")
	v.SetDefault(KeyMaxHandles, 20)
	v.SetDefault(KeyURLMaxLength, 2000)
	v.SetDefault(KeyConcurrency, 6)
	v.SetDefault(KeyTimeoutMs, 8000)
	v.SetDefault(KeyRetries, 2)
	v.SetDefault(KeyBackoffBaseMs, 250)
	v.SetDefault(KeyBackoffJitterMs, 100)
	v.SetDefault(KeyCacheTTLMs, 90000)
	v.SetDefault(KeyCacheMaxEntries, 1000)
	v.SetDefault(KeyCacheBackend, CacheLRU)
	v.SetDefault(KeyCoinsCount, 3)
	v.SetDefault(KeyAllowedOrigins, "*")
	v.SetDefault(KeyUpstreamRPS, 0)
	v.SetDefault(KeyUpstreamBurst, 0)
	v.SetDefault(KeyBreakerFailures, 0)
	v.SetDefault(KeyBreakerOpenMs, 30000)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyOTelStdout, false)
	v.SetDefault(KeyPort, "8080")
	v.AutomaticEnv()
	return v
}

// Load reads the settings from the environment.
func Load() (Settings, error) {
	return FromViper(New())
}

// FromViper resolves and validates the settings held by v.
func FromViper(v *viper.Viper) (Settings, error) {
	s := Settings{
		APIKey:          strings.TrimSpace(v.GetString(KeyAPIKey)),
		BaseURL:         v.GetString(KeyBaseURL),
		MaxHandles:      v.GetInt(KeyMaxHandles),
		URLMaxLength:    v.GetInt(KeyURLMaxLength),
		AllowedOrigins:  splitList(v.GetString(KeyAllowedOrigins)),
		Concurrency:     v.GetInt(KeyConcurrency),
		CoinsCount:      v.GetInt(KeyCoinsCount),
		Timeout:         millis(v, KeyTimeoutMs),
		Retries:         v.GetInt(KeyRetries),
		BackoffBase:     millis(v, KeyBackoffBaseMs),
		BackoffJitter:   millis(v, KeyBackoffJitterMs),
		CacheTTL:        millis(v, KeyCacheTTLMs),
		CacheMaxEntries: v.GetInt(KeyCacheMaxEntries),
		CacheBackend:    strings.ToLower(strings.TrimSpace(v.GetString(KeyCacheBackend))),
		UpstreamRPS:     v.GetFloat64(KeyUpstreamRPS),
		UpstreamBurst:   v.GetInt(KeyUpstreamBurst),
		BreakerFailures: v.GetInt(KeyBreakerFailures),
		BreakerOpen:     millis(v, KeyBreakerOpenMs),
		LogLevel:        strings.ToLower(v.GetString(KeyLogLevel)),
		OTelStdout:      v.GetBool(KeyOTelStdout),
		Addr:            v.GetString(KeyAddr),
	}
	if s.Addr == "" {
		s.Addr = net.JoinHostPort(v.GetString(KeyHost), v.GetString(KeyPort))
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}
	return s, s.Validate()
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var errs []error
	positive := func(name string, n int) {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, n))
		}
	}
	positive(KeyMaxHandles, s.MaxHandles)
	positive(KeyURLMaxLength, s.URLMaxLength)
	positive(KeyConcurrency, s.Concurrency)
	positive(KeyCoinsCount, s.CoinsCount)
	positive(KeyCacheMaxEntries, s.CacheMaxEntries)
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyTimeoutMs))
	}
	if s.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyCacheTTLMs))
	}
	if s.Retries < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyRetries))
	}
	if s.BackoffBase < 0 || s.BackoffJitter < 0 {
		errs = append(errs, errors.New("backoff durations must not be negative"))
	}
	if s.UpstreamRPS < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyUpstreamRPS))
	}
	if s.BreakerFailures > 0 && s.BreakerOpen <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive when %s is set", KeyBreakerOpenMs, KeyBreakerFailures))
	}
	switch s.CacheBackend {
	case CacheLRU, CacheRistretto:
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", KeyCacheBackend, CacheLRU, CacheRistretto, s.CacheBackend))
	}
	return errors.Join(errs...)
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
