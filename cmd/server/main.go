package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phishguard/gateway/internal/cache"
	"github.com/phishguard/gateway/internal/classify"
	"github.com/phishguard/gateway/internal/config"
	"github.com/phishguard/gateway/internal/db"
	"github.com/phishguard/gateway/internal/explain"
	"github.com/phishguard/gateway/internal/geoip"
	"github.com/phishguard/gateway/internal/handlers"
	"github.com/phishguard/gateway/internal/health"
	"github.com/phishguard/gateway/internal/ratelimit"
	"github.com/phishguard/gateway/internal/server"
	"github.com/phishguard/gateway/internal/sse"
	gwtls "github.com/phishguard/gateway/internal/tls"
	"github.com/phishguard/gateway/internal/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Result cache (Redis)
	resultCache, err := cache.New(cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("invalid redis url", "err", err)
		os.Exit(1)
	}
	defer resultCache.Close()

	// Classification backend
	classifier := classify.NewClient(classify.ClientConfig{
		BaseURL:       cfg.Classifier.URL,
		Timeout:       cfg.Classifier.Timeout,
		HealthTimeout: cfg.Classifier.HealthTimeout,
	}, logger)

	pipeline := classify.NewPipeline(resultCache, classifier, logger)
	aggregator := health.NewAggregator(resultCache, classifier, logger)

	// Activity log (optional). Without it streams heartbeat forever.
	var activityLog sse.ActivityLog = offlineActivityLog{}
	var store handlers.ActivityStore
	if cfg.Database.URL != "" {
		database, err := db.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Warn("activity database unavailable, user routes disabled", "err", err)
		} else {
			defer database.Close()
			activityLog = database
			store = database
		}
	} else {
		logger.Info("DATABASE_URL not set, user routes disabled")
	}

	// GeoIP (optional)
	var geo handlers.CountryLocator
	if cfg.GeoIP.Path != "" {
		loc, err := geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			logger.Warn("geoip database not loaded", "err", err)
		} else {
			defer loc.Close()
			geo = loc
		}
	}

	// Explanations (optional)
	var explainer handlers.Explainer
	if cfg.Explain.Enabled {
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
			logger.Warn("explanations enabled but AWS credentials not configured")
		} else {
			explainer = explain.NewBedrock(ctx, cfg.Explain.Region, cfg.Explain.Model, logger)
		}
	}

	publisher := sse.NewPublisher(activityLog, cfg.Stream.PollInterval, logger)
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, handlers.RateLimited)

	// HTTP handlers
	classifyHandler := handlers.NewClassifyHandler(pipeline, explainer, logger)
	statusHandler := handlers.NewStatusHandler(aggregator, resultCache, logger)
	streamHandler := handlers.NewStreamHandler(publisher, logger)
	wsHandler := ws.NewHandler(publisher, logger)

	// Build router
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/", statusHandler.Root)
	r.Get("/health", statusHandler.Health)
	r.Get("/stats", statusHandler.Stats)
	r.Get("/api/stats", statusHandler.Stats)

	// Classification (rate limited)
	r.Group(func(cr chi.Router) {
		if cfg.RateLimit.Enabled {
			cr.Use(limiter.Middleware)
		}
		cr.Post("/classify", classifyHandler.Classify)
		cr.Post("/api/check-url", classifyHandler.Classify)
		if explainer != nil {
			cr.Post("/explain", classifyHandler.Explain)
		}
	})

	// Live threat feeds
	r.Get("/stream/{principal_id}", streamHandler.HandleSSE)
	r.Get("/api/user/{principal_id}/threats/live", streamHandler.HandleSSE)
	r.Get("/ws/{principal_id}", wsHandler.HandleWS)

	// Per-principal activity (only with a database)
	if store != nil {
		activityHandler := handlers.NewActivityHandler(store, geo, logger)
		r.Post("/users/{principal_id}/activity", activityHandler.LogActivity)
		r.Get("/users/{principal_id}/analytics", activityHandler.GetAnalytics)
		r.Post("/api/user/{principal_id}/activity", activityHandler.LogActivity)
		r.Get("/api/user/{principal_id}/analytics", activityHandler.GetAnalytics)
	}

	// Start background goroutines
	go server.RunWithRecovery(ctx, logger, "health-watch", func(ctx context.Context) {
		aggregator.WatchLoop(ctx, cfg.Health.WatchInterval)
	})
	if cfg.RateLimit.Enabled {
		go server.RunWithRecovery(ctx, logger, "ratelimit-cleanup", limiter.CleanupLoop)
	}

	if len(cfg.TLS.Domains) > 0 {
		cm := gwtls.NewCertManager(cfg.TLS.Domains, cfg.TLS.Email, cfg.Server.Production, logger)
		go func() {
			if err := cm.ListenAndServe(ctx, r); err != nil {
				logger.Error("TLS server failed", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE + WebSocket need unlimited write time
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if err := server.Serve(ctx, srv, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

// offlineActivityLog stands in when no database is configured. Every poll
// fails, which the publisher turns into a heartbeat.
type offlineActivityLog struct{}

func (offlineActivityLog) LatestThreat(context.Context, string, int64) (*db.ActivityEvent, error) {
	return nil, db.ErrActivityLogUnavailable
}

// corsMiddleware allows the browser extension and dashboard to call the API
// from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
