package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newShortsServer mimics youtube.com: short IDs stay on /shorts/, others are redirected to /watch
func newShortsServer(t *testing.T, shorts map[string]bool, failing map[string]bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var inFlight, peak atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		if strings.HasPrefix(r.URL.Path, "/watch") {
			w.WriteHeader(http.StatusOK)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/shorts/")
		if failing[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if shorts[id] {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/watch?v="+id, http.StatusSeeOther)
	}))
	t.Cleanup(srv.Close)
	return srv, &peak
}

type recordingObserver struct {
	mu      sync.Mutex
	shorts  int
	regular int
	errors  int
}

func (o *recordingObserver) ObserveShortProbe(short bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.errors++
	case short:
		o.shorts++
	default:
		o.regular++
	}
}

func TestShortsProbe_IsShort(t *testing.T) {
	srv, _ := newShortsServer(t, map[string]bool{"short1": true}, map[string]bool{"broken": true})
	probe := NewShortsProbe(srv.URL, time.Second, 2)

	assert.True(t, probe.IsShort(context.Background(), "short1"))
	assert.False(t, probe.IsShort(context.Background(), "regular1"))
	assert.False(t, probe.IsShort(context.Background(), "broken"))
}

func TestShortsProbe_UnreachableHostIsNotShort(t *testing.T) {
	srv, _ := newShortsServer(t, nil, nil)
	url := srv.URL
	srv.Close()

	probe := NewShortsProbe(url, 200*time.Millisecond, 1)
	assert.False(t, probe.IsShort(context.Background(), "anything"))
}

func TestShortsProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := NewShortsProbe(srv.URL, 50*time.Millisecond, 1)
	assert.False(t, probe.IsShort(context.Background(), "slow"))
}

func TestShortsProbe_DetectBatch(t *testing.T) {
	shorts := map[string]bool{}
	failing := map[string]bool{"v-7": true}
	ids := make([]string, 0, 45)
	for i := 0; i < 45; i++ {
		id := fmt.Sprintf("v-%d", i)
		ids = append(ids, id)
		if i%3 == 0 {
			shorts[id] = true
		}
	}
	srv, peak := newShortsServer(t, shorts, failing)

	probe := NewShortsProbe(srv.URL, time.Second, 4)
	obs := &recordingObserver{}
	probe.SetObserver(obs)

	results := probe.DetectBatch(context.Background(), ids)

	require.Len(t, results, len(ids))
	for _, id := range ids {
		assert.Equal(t, shorts[id], results[id], id)
	}
	assert.LessOrEqual(t, peak.Load(), int64(4))
	assert.Equal(t, 15, obs.shorts)
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, 29, obs.regular)
}

func TestShortsProbe_DetectBatchEmpty(t *testing.T) {
	probe := NewShortsProbe("", 0, 0)
	assert.Empty(t, probe.DetectBatch(context.Background(), nil))
	assert.Equal(t, DefaultShortsBaseURL, probe.baseURL)
	assert.Equal(t, DefaultShortsWorkers, probe.workers)
	assert.Equal(t, DefaultProbeTimeout, probe.httpClient.Timeout)
}

func TestShortsProbe_RateLimit(t *testing.T) {
	srv, _ := newShortsServer(t, map[string]bool{"a": true}, nil)
	probe := NewShortsProbe(srv.URL, time.Second, 5)
	probe.SetRateLimit(20)

	start := time.Now()
	results := probe.DetectBatch(context.Background(), []string{"a", "b", "c", "d", "e"})

	// burst of one, then a token every 50ms
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
	assert.True(t, results["a"])
	assert.False(t, results["b"])
}

func TestShortsProbe_RateLimitCanceled(t *testing.T) {
	srv, _ := newShortsServer(t, map[string]bool{"a": true}, nil)
	probe := NewShortsProbe(srv.URL, time.Second, 1)
	probe.SetRateLimit(1)
	obs := &recordingObserver{}
	probe.SetObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, probe.IsShort(ctx, "a"))
	assert.Equal(t, 1, obs.errors)

	probe.SetRateLimit(0)
	assert.Nil(t, probe.limiter)
}

// panickingObserver blows up whenever a short is reported
type panickingObserver struct {
	recordingObserver
}

func (o *panickingObserver) ObserveShortProbe(short bool, err error) {
	if short && err == nil {
		panic("observer bug")
	}
	o.recordingObserver.ObserveShortProbe(short, err)
}

func TestShortsProbe_DetectBatchRecoversFromPanic(t *testing.T) {
	srv, _ := newShortsServer(t, map[string]bool{"a": true}, nil)
	probe := NewShortsProbe(srv.URL, time.Second, 2)
	obs := &panickingObserver{}
	probe.SetObserver(obs)

	var results map[string]bool
	require.NotPanics(t, func() {
		results = probe.DetectBatch(context.Background(), []string{"a", "b"})
	})

	require.Len(t, results, 2)
	assert.False(t, results["a"])
	assert.False(t, results["b"])
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, 1, obs.regular)
}
