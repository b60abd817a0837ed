package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors_CountFetchSources(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveFetch("profile", "live")
	c.ObserveFetch("profile", "cache")
	c.ObserveFetch("profile", "cache")

	if got := testutil.ToFloat64(c.fetches.WithLabelValues("profile", "cache")); got != 2 {
		t.Fatalf("cache fetches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.fetches.WithLabelValues("profile", "live")); got != 1 {
		t.Fatalf("live fetches = %v, want 1", got)
	}
}

func TestCollectors_HTTPAndBreaker(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveHTTP("GET", 414, time.Millisecond)
	c.SetBreakerOpen(true)

	if got := testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "414")); got != 1 {
		t.Fatalf("http requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.breakerOpen); got != 1 {
		t.Fatalf("breaker gauge = %v, want 1", got)
	}
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	c.ObserveFetch("coins", "live")
	c.ObserveFetchError("coins")
	c.ObserveRetry("coins")
	c.ObserveUpstream("/profile", "ok", time.Second)
	c.SetBreakerOpen(false)
	c.ObserveHTTP("POST", 200, time.Second)
	c.ObserveIdentifiers(3)
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
