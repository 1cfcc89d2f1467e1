package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Minute
)

// RunWithRecovery runs fn in a loop, recovering from panics with exponential backoff.
// A loop that returns while ctx is still live is restarted the same way.
// It stops when ctx is cancelled.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context)) {
	runWithRecovery(ctx, logger, name, fn, backoff)
}

func runWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context), delay func(attempt int) time.Duration) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			logger.Info("background loop stopped", "name", name)
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("background loop panicked",
						"name", name,
						"panic", r,
						"stack", string(debug.Stack()),
						"attempt", attempt,
					)
				}
			}()
			fn(ctx)
		}()

		if ctx.Err() != nil {
			logger.Info("background loop stopped", "name", name)
			return
		}

		attempt++
		wait := delay(attempt)
		logger.Warn("background loop restarting",
			"name", name,
			"attempt", attempt,
			"backoff", wait,
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// backoff is 1s, 2s, 4s, ... capped at 5 minutes.
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// ParseLevel maps debug|info|warn|error onto slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON slog.Logger writing to w.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// SetupLogger creates a structured slog.Logger with JSON output to stdout.
func SetupLogger(level string) *slog.Logger {
	return NewLogger(os.Stdout, level)
}

// Serve runs srv until ctx is cancelled, then shuts it down, giving in-flight
// requests up to timeout to finish. Request contexts derive from ctx, so
// long-lived streams and hijacked websockets end with it.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if srv.BaseContext == nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
