// Package promote fetches over plain HTTP first and re-fetches in a headless browser
// when the response looks script-rendered.
package promote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/essaypub/internal/essay"
)

// Detector decides whether a probe response needs a headless re-fetch.
type Detector interface {
	ShouldPromote(resp essay.FetchResponse) bool
}

// Fetcher implements essay.Fetcher over a probe and a headless fetcher.
type Fetcher struct {
	probe    essay.Fetcher
	headless essay.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting Fetcher.
func New(probe, headless essay.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if probe == nil || headless == nil || detector == nil {
		return nil, fmt.Errorf("probe, headless fetcher and detector are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}, nil
}

// Fetch returns the probe response unless the detector asks for promotion. A failed
// headless fetch falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request essay.FetchRequest) (essay.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return essay.FetchResponse{}, err
	}
	if !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	logger := f.logger.With(zap.String("target", string(request.Target)), zap.String("url", request.URL))
	logger.Info("headless promotion applied")
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		logger.Warn("headless promotion failed, using probe response", zap.Error(err))
		return resp, nil
	}
	rendered.Attempts += resp.Attempts
	return rendered, nil
}
