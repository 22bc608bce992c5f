// Package pipeline runs one publish: fetch both documents, extract, merge, upload, announce.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/extract"
	"github.com/JakeFAU/essaypub/internal/merge"
	"github.com/JakeFAU/essaypub/internal/metrics"
	"github.com/JakeFAU/essaypub/internal/parallel"
)

// Uploader stores an artifact and returns its public URL.
type Uploader interface {
	Publish(ctx context.Context, key string, content []byte) (string, error)
}

// Deps are the collaborators a Pipeline runs with. Notifier, Metrics, Logger and
// Tracer are optional.
type Deps struct {
	Fetcher  essay.Fetcher
	Uploader Uploader
	Notifier essay.Notifier
	Hasher   essay.Hasher
	IDs      essay.IDGenerator
	Clock    essay.Clock
	Extract  extract.Options
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
	Tracer   trace.Tracer
}

// Request names the two source documents.
type Request struct {
	TemplateURL string
	EssayURL    string
}

// Result describes the published artifact.
type Result struct {
	RunID     string
	URL       string
	Key       string
	Title     string
	Slug      string
	Hash      string
	ShortHash string
	Bytes     int
}

// Pipeline publishes essays.
type Pipeline struct {
	deps Deps
}

// New validates deps and fills optional ones with no-op implementations.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Uploader == nil:
		return nil, fmt.Errorf("uploader is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Pipeline{deps: deps}, nil
}

// document is what each parallel branch produces. Only the field for its target is set.
type document struct {
	template string
	essay    essay.Essay
}

// Run executes one publish. Any fetch, extract or upload failure aborts the run; a
// notification failure is logged and does not.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.deps.Logger.With(zap.String("run_id", runID))

	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("template_url", req.TemplateURL),
		attribute.String("essay_url", req.EssayURL),
	))
	defer span.End()

	logger.Info("publishing essay", zap.String("template_url", req.TemplateURL), zap.String("essay_url", req.EssayURL))

	result, err := p.run(ctx, logger, runID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.deps.Metrics.ObserveRun(metrics.OutcomeFailure, time.Since(start))
		logger.Error("publish failed", zap.Error(err))
		return Result{}, err
	}
	span.SetAttributes(attribute.String("key", result.Key))
	p.deps.Metrics.ObserveRun(metrics.OutcomeSuccess, time.Since(start))
	logger.Info("essay published",
		zap.String("url", result.URL),
		zap.String("key", result.Key),
		zap.Int("bytes", result.Bytes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *zap.Logger, runID string, req Request) (Result, error) {
	docs, err := parallel.All(ctx,
		func(ctx context.Context) (document, error) {
			e, err := p.loadEssay(ctx, logger, req.EssayURL)
			return document{essay: e}, err
		},
		func(ctx context.Context) (document, error) {
			t, err := p.loadTemplate(ctx, logger, req.TemplateURL)
			return document{template: t}, err
		},
	)
	if err != nil {
		return Result{}, err
	}
	doc := docs[0].essay
	fragment := docs[1].template

	if fragment == "" {
		p.deps.Metrics.ObserveEmptyTemplate()
		logger.Warn("template has no fragment between sentinels, publishing essay into an empty template",
			zap.String("template_url", req.TemplateURL),
			zap.String("sentinel", extract.Sentinel),
		)
	}

	_, mergeSpan := p.deps.Tracer.Start(ctx, "pipeline.merge")
	artifact, err := merge.Merge(fragment, doc, p.deps.Hasher)
	mergeSpan.End()
	if err != nil {
		return Result{}, err
	}
	p.deps.Metrics.ObserveArtifact(len(artifact.Content))
	logger.Debug("artifact merged", zap.String("key", artifact.Key), zap.String("hash", artifact.Hash))

	publishCtx, publishSpan := p.deps.Tracer.Start(ctx, "pipeline.publish", trace.WithAttributes(attribute.String("key", artifact.Key)))
	url, err := p.deps.Uploader.Publish(publishCtx, artifact.Key, artifact.Content)
	if err != nil {
		publishSpan.RecordError(err)
		publishSpan.SetStatus(codes.Error, err.Error())
		publishSpan.End()
		return Result{}, err
	}
	publishSpan.End()

	result := Result{
		RunID:     runID,
		URL:       url,
		Key:       artifact.Key,
		Title:     doc.Title,
		Slug:      doc.Slug,
		Hash:      artifact.Hash,
		ShortHash: artifact.ShortHash,
		Bytes:     len(artifact.Content),
	}
	p.notify(ctx, logger, result)
	return result, nil
}

func (p *Pipeline) loadEssay(ctx context.Context, logger *zap.Logger, url string) (essay.Essay, error) {
	body, err := p.fetch(ctx, essay.TargetEssay, url)
	if err != nil {
		return essay.Essay{}, err
	}
	e, err := extract.Essay(string(body), p.deps.Extract)
	if err != nil {
		logger.Error("essay extraction failed", zap.String("url", url), zap.Error(err))
		return essay.Essay{}, fmt.Errorf("essay %s: %w", url, err)
	}
	e.SourceURL = url
	logger.Debug("essay extracted", zap.String("title", e.Title), zap.String("slug", e.Slug))
	return e, nil
}

func (p *Pipeline) loadTemplate(ctx context.Context, logger *zap.Logger, url string) (string, error) {
	body, err := p.fetch(ctx, essay.TargetTemplate, url)
	if err != nil {
		return "", err
	}
	fragment, err := extract.Template(string(body))
	if err != nil {
		logger.Error("template extraction failed", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("template %s: %w", url, err)
	}
	return fragment, nil
}

func (p *Pipeline) fetch(ctx context.Context, target essay.Target, url string) ([]byte, error) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.fetch."+string(target), trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	resp, err := p.deps.Fetcher.Fetch(ctx, essay.FetchRequest{URL: url, Target: target})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("attempts", resp.Attempts), attribute.Int("bytes", len(resp.Body)))
	return resp.Body, nil
}

func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, result Result) {
	if p.deps.Notifier == nil {
		return
	}
	event := essay.Published{
		RunID:       result.RunID,
		Title:       result.Title,
		Slug:        result.Slug,
		Key:         result.Key,
		URL:         result.URL,
		Hash:        result.Hash,
		Bytes:       result.Bytes,
		PublishedAt: p.deps.Clock.Now(),
	}
	id, err := p.deps.Notifier.Notify(ctx, event)
	if err != nil {
		p.deps.Metrics.ObserveNotification(metrics.OutcomeFailure)
		logger.Warn("publish notification failed", zap.String("key", result.Key), zap.Error(err))
		return
	}
	p.deps.Metrics.ObserveNotification(metrics.OutcomeSuccess)
	logger.Debug("publish notification sent", zap.String("message_id", id))
}
