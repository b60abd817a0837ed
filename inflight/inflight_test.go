package inflight

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_SingleCallerIsLive(t *testing.T) {
	g := New()
	v, src, err := g.Do("profile:alice:", func() (json.RawMessage, error) {
		return json.RawMessage(`{"handle":"alice"}`), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != SourceLive {
		t.Fatalf("source = %q, want %q", src, SourceLive)
	}
	if string(v) != `{"handle":"alice"}` {
		t.Fatalf("got %s", v)
	}
}

func TestDo_ConcurrentCallersShareOneLoad(t *testing.T) {
	g := New()
	const n = 10

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.RawMessage(`"shared"`), nil
	}

	type outcome struct {
		val json.RawMessage
		src Source
		err error
	}
	results := make(chan outcome, n)

	var started sync.WaitGroup
	started.Add(1)
	go func() {
		started.Done()
		v, src, err := g.Do("k", fn)
		results <- outcome{v, src, err}
	}()
	started.Wait()
	// Give the leader time to register before the others join.
	time.Sleep(20 * time.Millisecond)

	for range n - 1 {
		go func() {
			v, src, err := g.Do("k", fn)
			results <- outcome{v, src, err}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	live, joined := 0, 0
	for range n {
		o := <-results
		if o.err != nil {
			t.Fatalf("unexpected error: %v", o.err)
		}
		if string(o.val) != `"shared"` {
			t.Fatalf("got %s, want %q", o.val, `"shared"`)
		}
		switch o.src {
		case SourceLive:
			live++
		case SourceInflight:
			joined++
		default:
			t.Fatalf("unexpected source %q", o.src)
		}
	}

	if c := calls.Load(); c != 1 {
		t.Fatalf("fn called %d times, want 1", c)
	}
	if live != 1 || joined != n-1 {
		t.Fatalf("live=%d joined=%d, want 1 and %d", live, joined, n-1)
	}
}

func TestDo_FailureIsSharedAndForgotten(t *testing.T) {
	g := New()
	boom := errors.New("upstream down")

	release := make(chan struct{})
	var calls atomic.Int32
	failing := func() (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	errs := make(chan error, 2)
	go func() {
		_, _, err := g.Do("k", failing)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, _, err := g.Do("k", failing)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for range 2 {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("expected shared failure, got %v", err)
		}
	}
	if c := calls.Load(); c != 1 {
		t.Fatalf("fn called %d times, want 1", c)
	}

	// The failed entry is gone; the next call starts fresh.
	v, src, err := g.Do("k", func() (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	})
	if err != nil || src != SourceLive || string(v) != "1" {
		t.Fatalf("fresh load: v=%s src=%q err=%v", v, src, err)
	}
}

func TestDo_PanicBecomesError(t *testing.T) {
	g := New()
	_, _, err := g.Do("k", func() (json.RawMessage, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panicking load")
	}
}

func TestDo_DistinctKeysRunIndependently(t *testing.T) {
	g := New()
	var calls atomic.Int32
	fn := func() (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`null`), nil
	}

	for _, k := range []string{"profile:a:", "profile:b:", "coins:a:3"} {
		if _, src, _ := g.Do(k, fn); src != SourceLive {
			t.Fatalf("key %s: source = %q, want live", k, src)
		}
	}
	if c := calls.Load(); c != 3 {
		t.Fatalf("fn called %d times, want 3", c)
	}
}
