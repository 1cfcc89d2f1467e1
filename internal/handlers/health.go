package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phishguard/gateway/internal/cache"
	"github.com/phishguard/gateway/internal/health"
)

// Version is reported by the service index.
const Version = "1.0.0"

// HealthChecker computes composite health on demand.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// CacheStats reads hit/miss counters from the cache server.
type CacheStats interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

type statsResponse struct {
	TotalRequests    int64   `json:"total_requests"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// StatusHandler serves the operational endpoints.
type StatusHandler struct {
	health HealthChecker
	stats  CacheStats
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(h HealthChecker, stats CacheStats, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{health: h, stats: stats, logger: logger}
}

// Health handles GET /health. It always answers 200; degradation is in the body.
func (sh *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sh.health.Check(r.Context()))
}

// Stats handles GET /stats. Counters come from Redis itself.
func (sh *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := sh.stats.Stats(r.Context())
	if err != nil {
		sh.logger.Error("failed to read cache stats", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to retrieve statistics")
		return
	}

	total := s.Hits + s.Misses
	resp := statsResponse{TotalRequests: total, CacheHits: s.Hits, CacheMisses: s.Misses}
	if total > 0 {
		resp.CacheHitRate = float64(s.Hits) / float64(total) * 100
	}
	writeJSON(w, http.StatusOK, resp)
}

// Root handles GET /.
func (sh *StatusHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "PhishGuard gateway",
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"health":    "GET /health",
			"classify":  "POST /classify",
			"check_url": "POST /api/check-url",
			"explain":   "POST /explain",
			"stats":     "GET /stats",
			"stream":    "GET /stream/{principal_id}",
			"websocket": "GET /ws/{principal_id}",
			"activity":  "POST /users/{principal_id}/activity",
			"analytics": "GET /users/{principal_id}/analytics",
		},
	})
}
