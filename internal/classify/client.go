package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClassifyTimeout = 10 * time.Second
	defaultHealthTimeout   = 5 * time.Second
	maxResponseLen         = 1 << 20 // 1 MiB
)

// ClientConfig configures the classification backend client.
type ClientConfig struct {
	BaseURL       string
	Timeout       time.Duration // per classify call, default 10s
	HealthTimeout time.Duration // per liveness probe, default 5s
}

// Client calls the external URL scoring service. It performs no retries.
type Client struct {
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	http          *http.Client
	logger        *slog.Logger
}

// NewClient creates a classifier client. The underlying http.Client is shared
// by all requests and is safe for concurrent use.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		http:          &http.Client{},
		logger:        logger,
	}
	if c.timeout <= 0 {
		c.timeout = defaultClassifyTimeout
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = defaultHealthTimeout
	}
	return c
}

type predictRequest struct {
	URL             string          `json:"url"`
	SensitivityMode SensitivityMode `json:"sensitivity_mode"`
}

// Classify scores req.URL. The returned result is never marked cached and is
// timestamped on receipt.
func (c *Client) Classify(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(predictRequest{URL: req.URL, SensitivityMode: req.Mode})
	if err != nil {
		return nil, fmt.Errorf("classify: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrClassifierUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, c.transportError(err)
	}
	c.logger.Debug("classifier responded", "url", req.URL, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrClassifierUnavailable, resp.StatusCode, truncate(string(data), 200))
	}

	result, err := DecodeResult(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrClassifierUnavailable, err)
	}
	if result.URL == "" {
		result.URL = req.URL
	}
	if result.SensitivityMode == "" {
		result.SensitivityMode = req.Mode
	}
	result.Cached = false
	result.Timestamp = time.Now().UTC()
	return result, nil
}

// Health probes the backend's liveness endpoint with its own shorter timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrClassifierUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", ErrClassifierUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
