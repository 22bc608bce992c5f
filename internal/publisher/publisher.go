// Package publisher uploads merged artifacts to object storage.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/metrics"
	"github.com/JakeFAU/essaypub/internal/retry"
)

// Config controls how artifacts are written.
type Config struct {
	// Backend names the storage provider in logs and metric labels.
	Backend     string
	ContentType string
	// Retry bounds repeated uploads. Nil means retry.DefaultFixedPolicy.
	Retry retry.Policy
}

// Publisher writes artifacts through a BlobStore, retrying failed uploads.
type Publisher struct {
	store   essay.BlobStore
	cfg     Config
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New builds a Publisher over store.
func New(store essay.BlobStore, cfg Config, recorder *metrics.Recorder, logger *zap.Logger) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = essay.DefaultContentType
	}
	if cfg.Backend == "" {
		cfg.Backend = "unknown"
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultFixedPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, cfg: cfg, metrics: recorder, logger: logger}, nil
}

// Publish writes content under key and returns the public URL. Once retries are
// exhausted the last error is returned wrapped as essay.ErrStorageWrite.
func (p *Publisher) Publish(ctx context.Context, key string, content []byte) (string, error) {
	logger := p.logger.With(zap.String("key", key), zap.String("backend", p.cfg.Backend))

	var url string
	attempts, err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context, attempt int) error {
		logger.Debug("uploading artifact", zap.Int("attempt", attempt), zap.Int("bytes", len(content)))
		u, err := p.store.PutObject(ctx, key, p.cfg.ContentType, content)
		if err != nil {
			p.metrics.ObservePublishAttempt(p.cfg.Backend, metrics.OutcomeFailure)
			return err
		}
		p.metrics.ObservePublishAttempt(p.cfg.Backend, metrics.OutcomeSuccess)
		url = u
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		logger.Warn("upload failed, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	})
	if err != nil {
		logger.Error("giving up on upload", zap.Int("attempts", attempts), zap.Error(err))
		return "", fmt.Errorf("%w: key %s: %w", essay.ErrStorageWrite, key, err)
	}
	logger.Info("artifact uploaded", zap.String("url", url), zap.Int("attempts", attempts))
	return url, nil
}
