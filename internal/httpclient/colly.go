// Package httpclient implements pncp.Fetcher using gocolly.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/metrics"
	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
}

// Fetcher executes single HTTP GETs through a Colly collector with the
// pipeline's timeout and retry policy. Non-2xx responses are returned to the
// caller with the status code set, not as errors; callers decide how a given
// status degrades.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// Fetch executes one GET, retrying transport failures per the policy. Each
// network attempt is bounded by the configured timeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pncp.FetchResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, url)
		if err == nil {
			metrics.ObservePortalFetch(resp.StatusCode, len(resp.Body))
			return resp, nil
		}
		lastErr = err
		if !f.cfg.Retry.ShouldRetry(err, attempt) {
			break
		}
		wait := f.cfg.Retry.Backoff(attempt)
		f.logger.Debug("fetch retry",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			metrics.ObservePortalFetch(0, 0)
			return pncp.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
	}
	metrics.ObservePortalFetch(0, 0)
	return pncp.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (pncp.FetchResponse, error) {
	collector := f.baseCollector.Clone()
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   pncp.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		result = pncp.FetchResponse{
			StatusCode: r.StatusCode,
			Headers:    headersOrEmpty(r.Headers),
			Body:       r.Body,
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports HTTP error statuses through OnError; surface them as
		// regular responses so callers can degrade per-source.
		if r != nil && r.StatusCode > 0 {
			result = pncp.FetchResponse{
				StatusCode: r.StatusCode,
				Headers:    headersOrEmpty(r.Headers),
				Body:       r.Body,
				Duration:   time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(url); err != nil && fetchErr == nil && result.StatusCode == 0 {
			fetchErr = err
		}
		collector.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return pncp.FetchResponse{}, fmt.Errorf("visit %s: %w", url, ctx.Err())
	}
	if fetchErr != nil {
		return pncp.FetchResponse{}, fmt.Errorf("visit %s: %w", url, fetchErr)
	}
	return result, nil
}

func headersOrEmpty(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return *h
}
