// Package health composes dependency liveness into a single status.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status is the composite health of the gateway.
type Status string

const (
	Healthy  Status = "healthy"
	Degraded Status = "degraded"
)

const componentHealthy = "healthy"

// Checker reports the liveness of one dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Report is a point-in-time composite health result.
type Report struct {
	Status     Status    `json:"status"`
	Cache      string    `json:"cache"`
	Classifier string    `json:"classifier"`
	Timestamp  time.Time `json:"timestamp"`
}

// Aggregator probes the result cache and classifier on every Check. Nothing
// is cached between checks.
type Aggregator struct {
	cache      Checker
	classifier Checker
	logger     *slog.Logger
}

// NewAggregator creates a new health aggregator.
func NewAggregator(cache, classifier Checker, logger *slog.Logger) *Aggregator {
	return &Aggregator{cache: cache, classifier: classifier, logger: logger}
}

// Check probes both dependencies concurrently. The result is Healthy only if
// both are; any failure is Degraded.
func (a *Aggregator) Check(ctx context.Context) Report {
	var cacheErr, classifierErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cacheErr = a.cache.Health(ctx)
	}()
	go func() {
		defer wg.Done()
		classifierErr = a.classifier.Health(ctx)
	}()
	wg.Wait()

	rep := Report{
		Status:     Healthy,
		Cache:      describe(cacheErr),
		Classifier: describe(classifierErr),
		Timestamp:  time.Now().UTC(),
	}
	if cacheErr != nil || classifierErr != nil {
		rep.Status = Degraded
	}
	return rep
}

// WatchLoop re-checks health every interval and logs status transitions.
// It blocks until ctx is cancelled; run it under server.RunWithRecovery.
func (a *Aggregator) WatchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rep := a.Check(ctx)
		if rep.Status == last {
			continue
		}
		if rep.Status == Degraded {
			a.logger.Warn("health degraded", "cache", rep.Cache, "classifier", rep.Classifier)
		} else if last != "" {
			a.logger.Info("health recovered")
		}
		last = rep.Status
	}
}

func describe(err error) string {
	if err == nil {
		return componentHealthy
	}
	return "unhealthy: " + err.Error()
}
