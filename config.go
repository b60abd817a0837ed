package zoraprofiles

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/httpapi"
	"github.com/Keksclan/zoraprofiles/internal/core"
	"github.com/Keksclan/zoraprofiles/internal/settings"
	"github.com/Keksclan/zoraprofiles/profiles"
	"github.com/Keksclan/zoraprofiles/tracing"
	"github.com/Keksclan/zoraprofiles/upstream"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	upstream upstream.Config
	fetcher  profiles.Fetcher

	profiles     profiles.Config
	http         httpapi.Config
	cacheBackend string

	upstreamRPS   float64
	upstreamBurst int

	breakerFailures int
	breakerOpen     time.Duration

	logger   *zap.Logger
	registry *prometheus.Registry
	tracing  *tracing.TracingConfig

	middlewares core.MiddlewareBuilder
}

func newConfig() *config {
	return &config{
		upstream:     upstream.Config{BaseURL: upstream.DefaultBaseURL},
		profiles:     profiles.DefaultConfig(),
		http:         httpapi.DefaultConfig(),
		cacheBackend: settings.CacheLRU,
		breakerOpen:  30 * time.Second,
		logger:       zap.NewNop(),
	}
}
