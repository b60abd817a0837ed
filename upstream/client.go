// Package upstream is the HTTP client for the Zora coins SDK REST API. It
// fetches a profile and a profile's created coins, and optionally guards the
// upstream with a shared rate limiter and a circuit breaker.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/metrics"
	"github.com/Keksclan/zoraprofiles/retry"
)

// DefaultBaseURL is the public Zora coins SDK API.
const DefaultBaseURL = "https://api-sdk.zora.engineering"

const (
	apiKeyHeader    = "api-key"
	maxBodyBytes    = 4 << 20
	maxErrBodyBytes = 256
)

// HTTPClient is the subset of *http.Client used by [Client].
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config configures a [Client]. Only APIKey is needed for real traffic;
// everything else has a usable zero value.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient HTTPClient
	UserAgent  string

	// Breaker and Limiter are optional and shared by all requests.
	Breaker *Breaker
	Limiter *Limiter

	Logger         *zap.Logger
	Metrics        *metrics.Collectors
	TracerProvider trace.TracerProvider
}

// Client talks to the upstream API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	http      HTTPClient
	userAgent string
	breaker   *Breaker
	limiter   *Limiter
	logger    *zap.Logger
	metrics   *metrics.Collectors
	tracer    trace.Tracer
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		http:      cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		breaker:   cfg.Breaker,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.userAgent == "" {
		c.userAgent = "zoraprofiles"
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer("github.com/Keksclan/zoraprofiles/upstream")
	return c
}

// Ready returns [ErrMissingAPIKey] when the client cannot authenticate.
func (c *Client) Ready() error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// FetchProfile returns the raw profile object for identifier. The result is
// the JSON literal null when the upstream knows no such profile.
func (c *Client) FetchProfile(ctx context.Context, identifier string) (json.RawMessage, error) {
	var body struct {
		Profile json.RawMessage `json:"profile"`
	}
	q := url.Values{"identifier": {identifier}}
	if err := c.get(ctx, "profile", q, &body); err != nil {
		return nil, err
	}
	if len(body.Profile) == 0 {
		return json.RawMessage("null"), nil
	}
	return body.Profile, nil
}

// FetchCoins returns the edges of the coins created by identifier, at most
// count of them. A response without that path yields an empty array.
func (c *Client) FetchCoins(ctx context.Context, identifier string, count int) (json.RawMessage, error) {
	var body struct {
		Profile *struct {
			CreatedCoins *struct {
				Edges json.RawMessage `json:"edges"`
			} `json:"createdCoins"`
		} `json:"profile"`
	}
	q := url.Values{
		"identifier": {identifier},
		"count":      {strconv.Itoa(count)},
	}
	if err := c.get(ctx, "profileCoins", q, &body); err != nil {
		return nil, err
	}
	if body.Profile == nil || body.Profile.CreatedCoins == nil {
		return json.RawMessage("[]"), nil
	}
	edges := body.Profile.CreatedCoins.Edges
	if len(edges) == 0 || string(edges) == "null" {
		return json.RawMessage("[]"), nil
	}
	return edges, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if err := c.Ready(); err != nil {
		return retry.Permanent(err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.breaker != nil && !c.breaker.Allow() {
		c.metrics.ObserveUpstream(endpoint, "rejected", 0)
		return retry.Permanent(ErrCircuitOpen)
	}

	ctx, span := c.tracer.Start(ctx, "upstream."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("zora.endpoint", endpoint),
		attribute.String("zora.identifier", q.Get("identifier")),
	)

	start := time.Now()
	err := c.do(ctx, endpoint, q, out)
	elapsed := time.Since(start)
	c.record(err)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("upstream request failed",
			zap.String("endpoint", endpoint),
			zap.String("identifier", q.Get("identifier")),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	c.metrics.ObserveUpstream(endpoint, outcome, elapsed)
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return &StatusError{
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) record(err error) {
	if c.breaker == nil {
		return
	}
	c.breaker.Record(err)
}
