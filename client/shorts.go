package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultShortsBaseURL is where /shorts/{id} is probed
	DefaultShortsBaseURL = "https://www.youtube.com"

	DefaultShortsWorkers = 10
	DefaultProbeTimeout  = 5 * time.Second

	progressEvery = 20
)

// ProbeObserver is notified about every short-form probe
type ProbeObserver interface {
	ObserveShortProbe(short bool, err error)
}

// ShortsProbe detects short-form videos by requesting /shorts/{id} and checking
// whether the platform keeps the request on the shorts path. Regular videos are
// redirected to /watch.
type ShortsProbe struct {
	baseURL    string
	httpClient *http.Client
	workers    int
	limiter    *rate.Limiter
	observer   ProbeObserver
}

// NewShortsProbe creates a probe. Zero values fall back to the defaults.
func NewShortsProbe(baseURL string, timeout time.Duration, workers int) *ShortsProbe {
	if baseURL == "" {
		baseURL = DefaultShortsBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if workers < 1 {
		workers = DefaultShortsWorkers
	}

	return &ShortsProbe{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		workers:    workers,
	}
}

// SetObserver registers a probe observer (metrics)
func (p *ShortsProbe) SetObserver(o ProbeObserver) {
	p.observer = o
}

// SetRateLimit caps probes at rps requests per second across all workers.
// Zero or negative removes the cap.
func (p *ShortsProbe) SetRateLimit(rps float64) {
	if rps <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// IsShort reports whether videoID is short-form content. Failures count as false.
func (p *ShortsProbe) IsShort(ctx context.Context, videoID string) bool {
	short, err := p.probe(ctx, videoID)
	if p.observer != nil {
		p.observer.ObserveShortProbe(short, err)
	}
	if err != nil {
		log.Debug().Err(err).Str("video_id", videoID).Msg("Short probe failed, assuming regular video")
		return false
	}
	return short
}

func (p *ShortsProbe) probe(ctx context.Context, videoID string) (bool, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	target := p.baseURL + "/shorts/" + url.PathEscape(videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 ytstats/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// resp.Request is the last request of the redirect chain
	final := resp.Request.URL
	return strings.Contains(strings.ToLower(final.Path), "/shorts/"), nil
}

// detectOne runs IsShort and turns a panic into a failed probe
func (p *ShortsProbe) detectOne(ctx context.Context, videoID string) (short bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("video_id", videoID).Interface("panic", r).Msg("Recovered from panic during short detection")
			short = false
			p.notifyPanic(r)
		}
	}()
	return p.IsShort(ctx, videoID)
}

// notifyPanic reports a panicked probe as an error; the observer itself may be what panicked
func (p *ShortsProbe) notifyPanic(r any) {
	if p.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	p.observer.ObserveShortProbe(false, fmt.Errorf("short detection panicked: %v", r))
}

// DetectBatch probes all ids with bounded concurrency. The result holds one entry
// per input ID; anything that failed is false.
func (p *ShortsProbe) DetectBatch(ctx context.Context, ids []string) map[string]bool {
	results := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return results
	}
	for _, id := range ids {
		results[id] = false
	}

	log.Info().Int("video_count", len(ids)).Int("workers", p.workers).Msg("Running short detection")
	start := time.Now()

	var (
		mu        sync.Mutex
		completed atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(p.workers)

	for _, id := range ids {
		g.Go(func() error {
			short := p.detectOne(ctx, id)

			mu.Lock()
			results[id] = short
			mu.Unlock()

			if n := completed.Add(1); n%progressEvery == 0 {
				log.Debug().Int64("completed", n).Int("total", len(ids)).Msg("Short detection progress")
			}
			return nil
		})
	}
	_ = g.Wait()

	shortCount := 0
	for _, short := range results {
		if short {
			shortCount++
		}
	}

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("short_count", shortCount).
		Int("video_count", len(ids)).
		Msg("Short detection finished")

	return results
}
