package zoraprofiles

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/cache"
	"github.com/Keksclan/zoraprofiles/httpapi"
	"github.com/Keksclan/zoraprofiles/internal/core"
	"github.com/Keksclan/zoraprofiles/internal/settings"
	"github.com/Keksclan/zoraprofiles/metrics"
	"github.com/Keksclan/zoraprofiles/middleware"
	"github.com/Keksclan/zoraprofiles/profiles"
	"github.com/Keksclan/zoraprofiles/tracing"
	"github.com/Keksclan/zoraprofiles/upstream"
)

// Route paths served by [Server.Handler].
const (
	ProfilesPath       = "/api/zora-profiles"
	LegacyProfilesPath = "/api/get-zora-profiles"
	HealthPath         = "/healthz"
	MetricsPath        = "/metrics"
)

// Server wires the aggregation service behind the HTTP middleware stack.
// Build one per process with [NewServer]; its cache and inflight table live
// as long as the Server.
type Server struct {
	svc      *profiles.Service
	profiles http.Handler
	router   chi.Router
	metrics  http.Handler
	closers  []func()
}

// NewServer creates a [Server] by applying the supplied functional [Option]
// values. Middleware execution order is determined by fixed priority levels
// (see internal/core), not by the order options are passed.
//
// Example:
//
//	srv := zoraprofiles.NewServer(
//		zoraprofiles.WithAPIKey(key),
//		zoraprofiles.WithRecovery(),
//		zoraprofiles.WithConcurrency(8),
//	)
func NewServer(opts ...Option) *Server {
	cfg := newConfig()
	for _, o := range opts {
		o(cfg)
	}
	log := cfg.logger

	var m *metrics.Collectors
	metricsHandler := promhttp.Handler()
	if cfg.registry != nil {
		m = metrics.New(cfg.registry)
		metricsHandler = promhttp.HandlerFor(cfg.registry, promhttp.HandlerOpts{Registry: cfg.registry})
	}

	s := &Server{metrics: metricsHandler}

	svcOpts := []profiles.Option{
		profiles.WithLogger(log),
		profiles.WithMetrics(m),
		profiles.WithTracerProvider(cfg.tracing.Provider()),
	}
	if cfg.cacheBackend == settings.CacheRistretto {
		l1, err := cache.NewL1(int64(cfg.profiles.CacheMaxEntries), cfg.profiles.CacheTTL)
		if err != nil {
			log.Warn("ristretto cache unavailable, using the LRU cache", zap.Error(err))
		} else {
			svcOpts = append(svcOpts, profiles.WithStore(l1))
			s.closers = append(s.closers, l1.Close)
		}
	}

	fetcher := cfg.fetcher
	if fetcher == nil {
		fetcher = newUpstream(cfg, m)
	}
	s.svc = profiles.New(cfg.profiles, fetcher, svcOpts...)

	mb := cfg.middlewares
	mb.Add(core.OrderRequestID, middleware.RequestID(log))
	mb.Add(core.OrderTracing, tracing.Middleware(cfg.tracing))
	mb.Add(core.OrderLogging, middleware.Logger())
	if m != nil {
		mb.Add(core.OrderMetrics, middleware.Metrics(m))
	}
	api := httpapi.New(cfg.http, s.svc)
	s.profiles = middleware.Chain(api, mb.Build()...)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Handle(ProfilesPath, s.profiles)
	r.Handle(LegacyProfilesPath, s.profiles)
	r.Get(HealthPath, s.health)
	r.Handle(MetricsPath, s.metrics)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteCORS(w, r)
		httpapi.WriteError(w, http.StatusNotFound, "Not found", r.URL.Path)
	})
	s.router = r

	return s
}

func newUpstream(cfg *config, m *metrics.Collectors) *upstream.Client {
	uc := cfg.upstream
	uc.Logger = cfg.logger
	uc.Metrics = m
	uc.TracerProvider = cfg.tracing.Provider()
	if cfg.upstreamRPS > 0 {
		uc.Limiter = upstream.NewLimiter(cfg.upstreamRPS, cfg.upstreamBurst)
	}
	if cfg.breakerFailures > 0 {
		log := cfg.logger
		uc.Breaker = upstream.NewBreaker(upstream.BreakerConfig{
			FailureThreshold: cfg.breakerFailures,
			OpenTimeout:      cfg.breakerOpen,
			HalfOpenProbes:   1,
			OnStateChange: func(st upstream.BreakerState) {
				m.SetBreakerOpen(st == upstream.BreakerOpen)
				log.Info("upstream circuit breaker changed state", zap.Stringer("state", st))
			},
		})
	}
	return upstream.New(uc)
}

// Handler returns the full router: the aggregation endpoint under both of
// its paths, the health check and the metrics endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ProfilesHandler returns only the aggregation endpoint with its middleware,
// independent of the request path. Serverless entrypoints use it.
func (s *Server) ProfilesHandler() http.Handler {
	return s.profiles
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

// Service returns the aggregation service.
func (s *Server) Service() *profiles.Service {
	return s.svc
}

// Close releases background resources held by the cache.
func (s *Server) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := s.svc.Ready(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
