package classify

import (
	"context"
	"log/slog"
	"time"
)

// ResultCache is the cache-aside store consulted before the classifier.
// Get returns (nil, nil) on a miss.
type ResultCache interface {
	Get(ctx context.Context, url string) (*Result, error)
	Set(ctx context.Context, url string, result *Result, ttl time.Duration) error
}

// Classifier scores a URL against the backend model.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}

// Pipeline orchestrates a lookup: cache → classifier → cache write-back.
// Cache failures never fail a lookup; classifier failures always do.
//
// The cache is keyed by URL only, so a verdict computed under one sensitivity
// mode is served for every other mode until it expires.
type Pipeline struct {
	cache      ResultCache
	classifier Classifier
	logger     *slog.Logger
}

// NewPipeline creates a new classification pipeline.
func NewPipeline(cache ResultCache, classifier Classifier, logger *slog.Logger) *Pipeline {
	return &Pipeline{cache: cache, classifier: classifier, logger: logger}
}

// Classify validates the input and returns a verdict for rawURL.
func (p *Pipeline) Classify(ctx context.Context, rawURL, mode string) (*Result, error) {
	req, err := NewRequest(rawURL, mode)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	cached, err := p.cache.Get(ctx, req.URL)
	switch {
	case err != nil:
		p.logger.Warn("cache read failed, falling back to classifier", "url", req.URL, "err", err)
	case cached != nil:
		cached.Cached = true
		p.logger.Info("cache hit", "url", req.URL, "elapsed_ms", time.Since(start).Milliseconds())
		return cached, nil
	default:
		p.logger.Debug("cache miss", "url", req.URL)
	}

	result, err := p.classifier.Classify(ctx, req)
	if err != nil {
		p.logger.Error("classifier failed", "url", req.URL, "err", err)
		return nil, err
	}
	p.logger.Info("classified",
		"url", req.URL,
		"threat_level", result.ThreatLevel,
		"confidence", result.Confidence,
		"threshold", result.ThresholdUsed,
		"mode", result.SensitivityMode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if err := p.cache.Set(ctx, req.URL, result, result.CacheTTL()); err != nil {
		p.logger.Warn("cache write failed", "url", req.URL, "err", err)
	}
	return result, nil
}
