// Package profiles aggregates creator profiles and their latest coins for a
// batch of identifiers. Every lookup goes cache, then inflight, then live:
// a cached value is returned directly, a concurrent lookup of the same key
// is joined, and otherwise a resilient upstream call is made and its result
// cached.
package profiles

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Keksclan/zoraprofiles/cache"
	"github.com/Keksclan/zoraprofiles/inflight"
	"github.com/Keksclan/zoraprofiles/metrics"
	"github.com/Keksclan/zoraprofiles/pool"
	"github.com/Keksclan/zoraprofiles/retry"
)

const (
	kindProfile = "profile"
	kindCoins   = "coins"
)

// Fetcher is the upstream data source.
type Fetcher interface {
	// Ready reports a configuration problem that makes every fetch fail.
	Ready() error
	FetchProfile(ctx context.Context, identifier string) (json.RawMessage, error)
	FetchCoins(ctx context.Context, identifier string, count int) (json.RawMessage, error)
}

// Config holds the aggregation parameters.
type Config struct {
	Concurrency     int
	CoinsCount      int
	CacheTTL        time.Duration
	CacheMaxEntries int
	Retry           retry.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     6,
		CoinsCount:      3,
		CacheTTL:        90 * time.Second,
		CacheMaxEntries: 1000,
		Retry: retry.Config{
			MaxAttempts:    3,
			AttemptTimeout: 8 * time.Second,
			BaseDelay:      250 * time.Millisecond,
			Jitter:         100 * time.Millisecond,
		},
	}
}

// Option customises a [Service].
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider sets the provider used for aggregation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer("github.com/Keksclan/zoraprofiles/profiles")
		}
	}
}

// WithStore replaces the default TTL store.
func WithStore(st cache.Store) Option {
	return func(s *Service) { s.store = st }
}

// Service owns the process-wide cache and inflight table. Create one per
// process and share it between requests.
type Service struct {
	cfg     Config
	fetcher Fetcher
	store   cache.Store
	group   *inflight.Group
	logger  *zap.Logger
	metrics *metrics.Collectors
	tracer  trace.Tracer
}

// New creates a Service that loads data through f.
func New(cfg Config, f Fetcher, opts ...Option) *Service {
	cfg.Concurrency = max(cfg.Concurrency, 1)
	s := &Service{
		cfg:     cfg,
		fetcher: f,
		group:   inflight.New(),
		logger:  zap.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer("github.com/Keksclan/zoraprofiles/profiles"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = cache.NewTTL(cfg.CacheMaxEntries, cfg.CacheTTL)
	}
	return s
}

// Ready returns the upstream's configuration error, if any.
func (s *Service) Ready() error {
	return s.fetcher.Ready()
}

// Config returns the configuration the service runs with.
func (s *Service) Config() Config {
	return s.cfg
}

// Aggregate looks up every identifier with bounded concurrency and returns
// one result per identifier in input order. identifiers should come from
// [NormalizeIdentifiers]. Per-identifier failures are reported in the
// results; the only error returned is the upstream's Ready error.
func (s *Service) Aggregate(ctx context.Context, identifiers []string) (*Response, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "profiles.Aggregate")
	defer span.End()
	span.SetAttributes(attribute.Int("zora.identifiers", len(identifiers)))
	s.metrics.ObserveIdentifiers(len(identifiers))

	start := time.Now()
	slots := pool.Run(ctx, identifiers, s.cfg.Concurrency, func(ctx context.Context, _ int, id string) (Result, error) {
		return s.lookup(ctx, id), nil
	})

	resp := &Response{Profiles: make([]Result, len(slots))}
	for i, r := range slots {
		res := r.Value
		if r.Err != nil {
			res = failed(identifiers[i], r.Err)
		}
		if !res.OK {
			resp.Meta.HadErrors = true
		}
		resp.Profiles[i] = res
	}
	resp.Meta.Count = len(resp.Profiles)
	resp.Meta.DurationMs = time.Since(start).Milliseconds()
	resp.Meta.Concurrency = s.cfg.Concurrency
	resp.Meta.CacheTTLMs = s.cfg.CacheTTL.Milliseconds()

	span.SetAttributes(attribute.Bool("zora.had_errors", resp.Meta.HadErrors))
	return resp, nil
}

// lookup fetches the profile and coins of one identifier in parallel.
func (s *Service) lookup(ctx context.Context, id string) Result {
	var (
		profile, posts       json.RawMessage
		profileSrc, postsSrc inflight.Source
		g                    errgroup.Group
	)
	g.Go(func() (err error) {
		profile, profileSrc, err = s.fetch(ctx, kindProfile, id, "", func(ctx context.Context) (json.RawMessage, error) {
			return s.fetcher.FetchProfile(ctx, id)
		})
		return err
	})
	g.Go(func() (err error) {
		count := s.cfg.CoinsCount
		posts, postsSrc, err = s.fetch(ctx, kindCoins, id, strconv.Itoa(count), func(ctx context.Context) (json.RawMessage, error) {
			return s.fetcher.FetchCoins(ctx, id, count)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return failed(id, err)
	}

	if len(profile) == 0 {
		profile = json.RawMessage("null")
	}
	if len(posts) == 0 || string(posts) == "null" {
		posts = json.RawMessage("[]")
	}
	return Result{
		Handle:  id,
		OK:      true,
		Profile: profile,
		Posts:   posts,
		Sources: &Sources{Profile: profileSrc, Posts: postsSrc},
	}
}

// fetch resolves one key through cache, inflight and live layers. The live
// load runs detached from ctx so that a caller going away does not fail the
// other callers sharing the load; its duration is bounded by the retry
// policy instead.
func (s *Service) fetch(ctx context.Context, kind, id, extra string, load func(context.Context) (json.RawMessage, error)) (json.RawMessage, inflight.Source, error) {
	key := cacheKey(kind, id, extra)
	if v, ok := s.store.Get(key); ok {
		s.metrics.ObserveFetch(kind, string(inflight.SourceCache))
		return v, inflight.SourceCache, nil
	}

	cached := false
	v, src, err := s.group.Do(key, func() (json.RawMessage, error) {
		// Another load may have filled the cache since the check above.
		if v, ok := s.store.Get(key); ok {
			cached = true
			return v, nil
		}
		v, err := retry.Do(context.WithoutCancel(ctx), s.retryConfig(kind, id), load)
		if err != nil {
			return nil, err
		}
		s.store.Set(key, v)
		return v, nil
	})
	if cached {
		src = inflight.SourceCache
	}
	if err != nil {
		s.metrics.ObserveFetchError(kind)
		if src == inflight.SourceLive {
			s.logger.Warn("upstream lookup failed",
				zap.String("kind", kind),
				zap.String("identifier", id),
				zap.Error(err),
			)
		}
		return nil, src, err
	}
	s.metrics.ObserveFetch(kind, string(src))
	return v, src, nil
}

func (s *Service) retryConfig(kind, id string) retry.Config {
	cfg := s.cfg.Retry
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metrics.ObserveRetry(kind)
		s.logger.Debug("retrying upstream lookup",
			zap.String("kind", kind),
			zap.String("identifier", id),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if next != nil {
			next(attempt, err, delay)
		}
	}
	return cfg
}
