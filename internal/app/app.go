// Package app builds the long-lived collaborators of a publish run from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/clock/system"
	"github.com/JakeFAU/essaypub/internal/config"
	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/extract"
	collyfetcher "github.com/JakeFAU/essaypub/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/essaypub/internal/fetcher/headless"
	"github.com/JakeFAU/essaypub/internal/fetcher/promote"
	"github.com/JakeFAU/essaypub/internal/hash/sha256"
	"github.com/JakeFAU/essaypub/internal/headless/detector"
	"github.com/JakeFAU/essaypub/internal/id/uuid"
	"github.com/JakeFAU/essaypub/internal/metrics"
	notifymemory "github.com/JakeFAU/essaypub/internal/notify/memory"
	notifypubsub "github.com/JakeFAU/essaypub/internal/notify/pubsub"
	"github.com/JakeFAU/essaypub/internal/pipeline"
	"github.com/JakeFAU/essaypub/internal/policy/ratelimit"
	"github.com/JakeFAU/essaypub/internal/publisher"
	"github.com/JakeFAU/essaypub/internal/retry"
	"github.com/JakeFAU/essaypub/internal/storage/gcs"
	"github.com/JakeFAU/essaypub/internal/storage/local"
	"github.com/JakeFAU/essaypub/internal/storage/memory"
	"github.com/JakeFAU/essaypub/internal/storage/s3"
	"github.com/JakeFAU/essaypub/internal/telemetry"
)

// Options adjust how New builds the collaborators.
type Options struct {
	// DryRun forces the memory storage backend and records notifications in-process.
	DryRun bool
	// LookupEnv reads credentials. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// App holds the services shared by one run and releases them on Close.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Recorder
	pipeline *pipeline.Pipeline
	backend  string
	closers  []func(context.Context) error
}

// New wires every component named in cfg. It fails fast when a backend cannot be built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close(ctx)
		}
	}()

	provider := cfg.Storage.Provider
	if opts.DryRun {
		provider = config.ProviderMemory
	}
	store, err := a.buildStore(ctx, provider, opts.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.backend = provider
	pub, err := publisher.New(store, publisher.Config{
		Backend:     provider,
		ContentType: cfg.Storage.ContentType,
		Retry:       retry.NewFixedPolicy(cfg.Storage.MaxRetries, cfg.StorageRetryDelay()),
	}, a.metrics, logger.Named("publisher"))
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	fetcher, err := a.buildFetcher()
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	notifier, err := a.buildNotifier(ctx, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("init notifier: %w", err)
	}

	deps := pipeline.Deps{
		Fetcher:  fetcher,
		Uploader: pub,
		Notifier: notifier,
		Hasher:   sha256.New(),
		IDs:      uuid.New(),
		Clock:    system.New(),
		Extract:  extract.Options{HeaderID: cfg.Extract.HeaderID, FooterID: cfg.Extract.FooterID},
		Metrics:  a.metrics,
		Logger:   logger.Named("pipeline"),
	}
	if cfg.Tracing.Enabled {
		var opts []sdktrace.TracerProviderOption
		if cfg.Tracing.Exporter == config.TraceExporterCloudTrace {
			exporter, err := telemetry.CloudTraceExporter(cfg.Tracing.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("init tracing: %w", err)
			}
			opts = append(opts, exporter)
		}
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, opts...)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, tp.Shutdown)
		deps.Tracer = telemetry.Tracer()
	}

	a.pipeline, err = pipeline.New(deps)
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("storage", provider),
		zap.Bool("headless", cfg.Fetch.Headless.Enabled),
		zap.Bool("notify", notifier != nil),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)
	ok = true
	return a, nil
}

// Pipeline returns the configured publish pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Metrics returns the run's metric recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}

// Backend names the storage provider in use.
func (a *App) Backend() string {
	return a.backend
}

// Close pushes metrics when a Pushgateway is configured and releases clients in reverse
// construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := a.metrics.Push(ctx, url, a.cfg.Metrics.JobName); err != nil {
			a.logger.Warn("metrics push failed", zap.String("pushgateway", url), zap.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildStore(ctx context.Context, provider string, lookup func(string) (string, bool)) (essay.BlobStore, error) {
	cfg := a.cfg.Storage
	switch provider {
	case config.ProviderMemory:
		return memory.NewBlobStore(), nil
	case config.ProviderLocal:
		return local.New(local.Config{BaseDir: cfg.LocalDir})
	case config.ProviderS3:
		creds, err := s3.CredentialsFromEnv(lookup)
		if err != nil {
			return nil, err
		}
		s3cfg := s3.Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
			Credentials:   creds,
		}
		client, err := s3.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return s3.New(client, s3cfg)
	case config.ProviderGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket, PublicBaseURL: cfg.PublicBaseURL})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}

func (a *App) buildFetcher() (essay.Fetcher, error) {
	fetch := a.cfg.Fetch
	policy := retry.NewFixedPolicy(fetch.MaxRetries, a.cfg.FetchRetryDelay())
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    fetch.UserAgent,
		Timeout:      a.cfg.FetchTimeout(),
		Retry:        policy,
		MaxBodyBytes: fetch.MaxBodyBytes,
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   fetch.RateLimitRPS,
			DefaultBurst: fetch.RateLimitBurst,
		}, a.metrics),
	}, a.metrics, a.logger.Named("fetcher"))
	if !fetch.Headless.Enabled {
		return probe, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       fetch.Headless.MaxParallel,
		UserAgent:         fetch.UserAgent,
		NavigationTimeout: time.Duration(fetch.Headless.NavTimeoutSec) * time.Second,
		Retry:             policy,
	}, a.metrics, a.logger.Named("fetcher.headless"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		headless.Close()
		return nil
	})
	return promote.New(probe, headless, detector.NewHeuristic(fetch.Headless.PromotionThresh), a.logger.Named("fetcher.promote"))
}

func (a *App) buildNotifier(ctx context.Context, dryRun bool) (essay.Notifier, error) {
	ps := a.cfg.PubSub
	if ps.TopicName == "" {
		return nil, nil
	}
	if dryRun {
		return notifymemory.New(), nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	notifier := notifypubsub.New(client.Topic(ps.TopicName), nil)
	a.closers = append(a.closers, func(context.Context) error {
		notifier.Close()
		return client.Close()
	})
	return notifier, nil
}
