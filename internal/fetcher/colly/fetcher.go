// Package collyfetcher implements essay.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/metrics"
	"github.com/JakeFAU/essaypub/internal/retry"
)

const defaultTimeout = 15 * time.Second

// Waiter paces requests to a URL's host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Retry bounds repeated attempts. Nil means retry.DefaultFixedPolicy.
	Retry retry.Policy
	// Limiter, when set, is consulted before every attempt.
	Limiter Waiter
	// MaxBodyBytes rejects larger bodies as transport failures. Zero means unlimited.
	MaxBodyBytes int
}

// Fetcher implements essay.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	metrics       *metrics.Recorder
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The transport and timeout are fixed on the base collector because
// clones share its HTTP backend.
func New(cfg Config, recorder *metrics.Recorder, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultFixedPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(bodyReadLimit(cfg.MaxBodyBytes)),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		metrics:       recorder,
		logger:        logger,
	}
}

// Fetch GETs request.URL, retrying failures under the configured policy.
// Only an HTTP 200 counts as success.
func (f *Fetcher) Fetch(ctx context.Context, request essay.FetchRequest) (essay.FetchResponse, error) {
	logger := f.logger.With(zap.String("target", string(request.Target)), zap.String("url", request.URL))

	var result essay.FetchResponse
	attempts, err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context, attempt int) error {
		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
				return err
			}
		}
		logger.Debug("GET", zap.Int("attempt", attempt))
		resp, err := f.fetchOnce(ctx, request)
		if err != nil {
			f.metrics.ObserveFetchAttempt(string(request.Target), request.URL, metrics.OutcomeFailure)
			return err
		}
		f.metrics.ObserveFetchAttempt(string(request.Target), request.URL, metrics.OutcomeSuccess)
		result = resp
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		logger.Warn("fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	})
	if err != nil {
		logger.Error("giving up on fetch", zap.Int("attempts", attempts), zap.Error(err))
		return essay.FetchResponse{}, err
	}

	result.Attempts = attempts
	f.metrics.ObserveFetchDuration(string(request.Target), result.Duration)
	logger.Debug("fetch succeeded",
		zap.Int("attempts", attempts),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, request essay.FetchRequest) (essay.FetchResponse, error) {
	var (
		result   essay.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return essay.FetchResponse{}, fmt.Errorf("%w: GET %s: %w", essay.ErrTransport, request.URL, err)
	}
	if result.StatusCode != http.StatusOK {
		return essay.FetchResponse{}, fmt.Errorf("%w: GET %s: unexpected status %d", essay.ErrTransport, request.URL, result.StatusCode)
	}
	if limit := f.cfg.MaxBodyBytes; limit > 0 && len(result.Body) > limit {
		return essay.FetchResponse{}, fmt.Errorf("%w: GET %s: body exceeds %d bytes", essay.ErrTransport, request.URL, limit)
	}
	return result, nil
}

// bodyReadLimit is the collector's read cap. Colly truncates silently at its cap, so a
// configured limit reads one extra byte to detect overflow. Colly treats 0 as unlimited.
func bodyReadLimit(maxBodyBytes int) int {
	if maxBodyBytes <= 0 {
		return 0
	}
	return maxBodyBytes + 1
}

func (f *Fetcher) buildCollector(
	request essay.FetchRequest,
	start time.Time,
	result *essay.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// Two explicit documents are fetched, not crawled.
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = bodyReadLimit(f.cfg.MaxBodyBytes)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request essay.FetchRequest,
	start time.Time,
	result *essay.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = essay.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request essay.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
