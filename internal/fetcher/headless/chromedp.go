// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/metrics"
	"github.com/JakeFAU/essaypub/internal/retry"
)

// Defaults applied by NewChromedp.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultSettle            = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle is how long scripts get to fill the page after the body is ready.
	Settle time.Duration
	// Retry bounds repeated attempts. Nil means retry.DefaultFixedPolicy.
	Retry retry.Policy
}

// Fetcher implements essay.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	tabs        *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
	metrics     *metrics.Recorder
	logger      *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome is started lazily on
// the first fetch.
func NewChromedp(cfg Config, recorder *metrics.Recorder, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultFixedPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var tabs *semaphore.Weighted
	if cfg.MaxParallel > 0 {
		tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		tabs:        tabs,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		metrics:     recorder,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders request.URL in a headless browser, retrying failures under the configured
// policy. The document response must be HTTP 200.
func (f *Fetcher) Fetch(ctx context.Context, request essay.FetchRequest) (essay.FetchResponse, error) {
	logger := f.logger.With(zap.String("target", string(request.Target)), zap.String("url", request.URL))

	var result essay.FetchResponse
	attempts, err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context, attempt int) error {
		logger.Debug("headless GET", zap.Int("attempt", attempt))
		resp, err := f.fetchOnce(ctx, request)
		if err != nil {
			f.metrics.ObserveFetchAttempt(string(request.Target), request.URL, metrics.OutcomeFailure)
			return err
		}
		f.metrics.ObserveFetchAttempt(string(request.Target), request.URL, metrics.OutcomeSuccess)
		result = resp
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		logger.Warn("headless fetch failed, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	})
	if err != nil {
		logger.Error("giving up on headless fetch", zap.Int("attempts", attempts), zap.Error(err))
		return essay.FetchResponse{}, err
	}
	result.Attempts = attempts
	f.metrics.ObserveFetchDuration(string(request.Target), result.Duration)
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, request essay.FetchRequest) (essay.FetchResponse, error) {
	if err := f.acquireTab(ctx); err != nil {
		return essay.FetchResponse{}, err
	}
	defer f.releaseTab()

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// The tab is derived from the allocator, so the caller's ctx has to be bridged in.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.listen)

	start := time.Now()
	var html, location string
	if err := chromedp.Run(tabCtx,
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return essay.FetchResponse{}, fmt.Errorf("%w: headless GET %s: %w", essay.ErrTransport, request.URL, err)
	}

	resp := doc.result(request.URL, location)
	if resp.StatusCode != http.StatusOK {
		return essay.FetchResponse{}, fmt.Errorf("%w: headless GET %s: unexpected status %d", essay.ErrTransport, request.URL, resp.StatusCode)
	}
	resp.Body = []byte(html)
	resp.Duration = time.Since(start)
	return resp, nil
}

// prepareTab enables network events and applies the user agent and request headers.
func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := networkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquireTab(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	if err := f.tabs.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for browser tab: %w", err)
	}
	return nil
}

func (f *Fetcher) releaseTab() {
	if f.tabs != nil {
		f.tabs.Release(1)
	}
}

// documentResponse records the last document-type response seen by a tab. Redirects
// produce several; the final one describes the page that was rendered.
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	url     string
	headers http.Header
}

func (d *documentResponse) listen(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := make(http.Header, len(event.Response.Headers))
	for key, value := range event.Response.Headers {
		// CDP joins repeated headers with newlines.
		for _, v := range strings.Split(fmt.Sprint(value), "\n") {
			headers.Add(key, v)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = true
	d.status = int(event.Response.Status)
	d.url = event.Response.URL
	d.headers = headers
}

// result builds the response metadata. Without a captured document response (served from
// cache or a service worker) the page is assumed to have loaded with 200 at location.
func (d *documentResponse) result(requestURL, location string) essay.FetchResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := essay.FetchResponse{URL: d.url, StatusCode: d.status, Headers: d.headers.Clone()}
	if !d.seen {
		resp.StatusCode = http.StatusOK
		resp.Headers = http.Header{}
	}
	if resp.URL == "" {
		resp.URL = location
	}
	if resp.URL == "" {
		resp.URL = requestURL
	}
	return resp
}

// networkHeaders converts request headers to the CDP form, joining repeated values.
func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
