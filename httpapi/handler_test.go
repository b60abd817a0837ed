package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/zoraprofiles/httpapi"
	"github.com/Keksclan/zoraprofiles/profiles"
	"github.com/Keksclan/zoraprofiles/retry"
	"github.com/Keksclan/zoraprofiles/upstream"
)

type stubFetcher struct {
	apiKey string
	fail   map[string]bool
	calls  atomic.Int32
}

func (s *stubFetcher) Ready() error {
	if s.apiKey == "" {
		return upstream.ErrMissingAPIKey
	}
	return nil
}

func (s *stubFetcher) FetchProfile(_ context.Context, id string) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.fail[id] {
		return nil, errors.New("profile lookup failed")
	}
	return json.RawMessage(`{"handle":"` + id + `"}`), nil
}

func (s *stubFetcher) FetchCoins(_ context.Context, id string, _ int) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.fail[id] {
		return nil, errors.New("coins lookup failed")
	}
	return json.RawMessage(`[]`), nil
}

func newHandler(t *testing.T, f *stubFetcher, cfg httpapi.Config) http.Handler {
	t.Helper()
	svc := profiles.New(profiles.Config{
		Concurrency:     6,
		CoinsCount:      3,
		CacheTTL:        time.Minute,
		CacheMaxEntries: 100,
		Retry:           retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, f)
	return httpapi.New(cfg, svc)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/zora-profiles", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandler_GetSuccess(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/zora-profiles?handles=Bob,@alice,bob", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, httpapi.DefaultCacheControl, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp profiles.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, 2)
	assert.Equal(t, "alice", resp.Profiles[0].Handle)
	assert.Equal(t, "Bob", resp.Profiles[1].Handle)
	assert.Equal(t, 2, resp.Meta.Count)
	assert.False(t, resp.Meta.HadErrors)
	assert.Equal(t, 6, resp.Meta.Concurrency)
	assert.EqualValues(t, 60000, resp.Meta.CacheTTLMs)
}

func TestHandler_PostArrayAndString(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{})

	for _, body := range []string{`{"handles":["alice","bob"]}`, `{"handles":"alice, bob"}`} {
		rec := serve(h, postJSON(body))
		require.Equal(t, http.StatusOK, rec.Code, body)
		var resp profiles.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Profiles, 2, body)
		assert.Equal(t, "alice", resp.Profiles[0].Handle)
		assert.Equal(t, "bob", resp.Profiles[1].Handle)
	}
}

func TestHandler_PartialFailure(t *testing.T) {
	f := &stubFetcher{apiKey: "k", fail: map[string]bool{"broken": true}}
	h := newHandler(t, f, httpapi.Config{})

	rec := serve(h, postJSON(`{"handles":["broken","fine"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp profiles.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, 2)
	assert.False(t, resp.Profiles[0].OK)
	assert.NotEmpty(t, resp.Profiles[0].Error)
	assert.Equal(t, "null", string(resp.Profiles[0].Profile))
	assert.True(t, resp.Profiles[1].OK)
	assert.True(t, resp.Meta.HadErrors)
}

func TestHandler_TooManyHandles(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{MaxHandles: 20})

	ids := make([]string, 25)
	for i := range ids {
		ids[i] = "user" + string(rune('a'+i))
	}
	payload, err := json.Marshal(map[string]any{"handles": ids})
	require.NoError(t, err)

	rec := serve(h, postJSON(string(payload)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Too many handles; max 20", body["error"])
	assert.EqualValues(t, 20, body["max"])
	assert.EqualValues(t, 25, body["received"])
	assert.Zero(t, f.calls.Load())
}

func TestHandler_URLTooLong(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{URLMaxLength: 2000})

	target := "/api/zora-profiles?handles=" + strings.Repeat("a", 3000)
	rec := serve(h, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusRequestURITooLong, rec.Code)
	assert.Equal(t, "URL too long; use POST / JSON body", decode(t, rec)["error"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, f.calls.Load())
}

func TestHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		errMsg string
	}{
		{
			name:   "method not allowed",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodDelete, "/api/zora-profiles", nil) },
			status: http.StatusMethodNotAllowed,
			errMsg: "Method not allowed",
		},
		{
			name: "post without json content type",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/zora-profiles", strings.NewReader(`{"handles":["a"]}`))
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			status: http.StatusUnsupportedMediaType,
			errMsg: "Use application/json body",
		},
		{
			name:   "get without handles",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api/zora-profiles", nil) },
			status: http.StatusBadRequest,
			errMsg: "Missing handles (POST {handles} or ?handles=...)",
		},
		{
			name:   "post with empty array",
			req:    func() *http.Request { return postJSON(`{"handles":[]}`) },
			status: http.StatusBadRequest,
			errMsg: "Missing handles (POST {handles} or ?handles=...)",
		},
		{
			name:   "post with empty body",
			req:    func() *http.Request { return postJSON(``) },
			status: http.StatusBadRequest,
			errMsg: "Missing handles (POST {handles} or ?handles=...)",
		},
		{
			name:   "only blanks",
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api/zora-profiles?handles=%20,@,", nil) },
			status: http.StatusBadRequest,
			errMsg: "No valid handles provided",
		},
		{
			name:   "malformed json",
			req:    func() *http.Request { return postJSON(`{"handles":`) },
			status: http.StatusBadRequest,
			errMsg: "Invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFetcher{apiKey: "k"}
			h := newHandler(t, f, httpapi.Config{})
			rec := serve(h, tt.req())
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.errMsg, decode(t, rec)["error"])
			assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Zero(t, f.calls.Load())
		})
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{MaxBodyBytes: 32})

	rec := serve(h, postJSON(`{"handles":["`+strings.Repeat("x", 100)+`"]}`))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.calls.Load())
}

func TestHandler_PreflightAndHead(t *testing.T) {
	f := &stubFetcher{}
	h := newHandler(t, f, httpapi.Config{})

	for _, method := range []string{http.MethodOptions, http.MethodHead} {
		rec := serve(h, httptest.NewRequest(method, "/api/zora-profiles", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, method)
		assert.Empty(t, rec.Body.String(), method)
		assert.Equal(t, "GET, POST, OPTIONS, HEAD", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestHandler_MissingAPIKey(t *testing.T) {
	f := &stubFetcher{}
	h := newHandler(t, f, httpapi.Config{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/zora-profiles?handles=alice", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server misconfig: ZORA_API_KEY is not defined", decode(t, rec)["error"])
	assert.Zero(t, f.calls.Load())
}

func TestHandler_CORSAllowList(t *testing.T) {
	f := &stubFetcher{apiKey: "k"}
	h := newHandler(t, f, httpapi.Config{AllowedOrigins: []string{"https://a.example", "https://b.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/zora-profiles", nil)
	req.Header.Set("Origin", "https://b.example")
	rec := serve(h, req)
	assert.Equal(t, "https://b.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodOptions, "/api/zora-profiles", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, "https://a.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

type failingAggregator struct{}

func (failingAggregator) Ready() error { return nil }

func (failingAggregator) Aggregate(context.Context, []string) (*profiles.Response, error) {
	return nil, errors.New("boom")
}

func TestHandler_UnexpectedError(t *testing.T) {
	h := httpapi.New(httpapi.Config{}, failingAggregator{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/zora-profiles?handles=alice", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Server error", body["error"])
	assert.Equal(t, "boom", body["message"])
}
