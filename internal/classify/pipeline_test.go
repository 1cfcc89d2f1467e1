package classify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]Result
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]Result{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, url string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.entries[url]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memCache) Set(_ context.Context, url string, r *Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[url] = *r
	m.ttls[url] = ttl
	return nil
}

type stubClassifier struct {
	mu    sync.Mutex
	calls []Request
	res   Result
	err   error
}

func (s *stubClassifier) Classify(_ context.Context, req Request) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	r := s.res
	r.URL = req.URL
	r.SensitivityMode = req.Mode
	r.Timestamp = time.Now().UTC()
	return &r, nil
}

func phishResult() Result {
	return Result{IsPhishing: true, Confidence: 0.92, ThreatLevel: ThreatHigh, ThresholdUsed: 0.5, ModelVersion: "v3"}
}

func TestPipelineMissThenHit(t *testing.T) {
	cache := newMemCache()
	cls := &stubClassifier{res: phishResult()}
	p := NewPipeline(cache, cls, discardLogger())
	const url = "http://example-test-phish.com/login"

	first, err := p.Classify(context.Background(), url, "balanced")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, first.IsPhishing)
	require.Len(t, cls.calls, 1)
	assert.Equal(t, PhishingTTL, cache.ttls[url])
	assert.False(t, cache.entries[url].Cached, "stored entry is not marked cached")

	// Different mode, same URL: served from the shared slot.
	second, err := p.Classify(context.Background(), url, "aggressive")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.IsPhishing, second.IsPhishing)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.ThreatLevel, second.ThreatLevel)
	assert.Equal(t, Balanced, second.SensitivityMode)
	assert.Len(t, cls.calls, 1, "classifier not invoked on hit")
}

func TestPipelineSafeVerdictTTL(t *testing.T) {
	cache := newMemCache()
	cls := &stubClassifier{res: Result{IsPhishing: false, Confidence: 0.1, ThreatLevel: ThreatSafe}}
	p := NewPipeline(cache, cls, discardLogger())

	_, err := p.Classify(context.Background(), "https://example.com/", "")
	require.NoError(t, err)
	assert.Equal(t, SafeTTL, cache.ttls["https://example.com/"])
	assert.Equal(t, Balanced, cls.calls[0].Mode, "empty mode defaults to balanced")
}

func TestPipelineCacheUnavailable(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	cls := &stubClassifier{res: phishResult()}
	p := NewPipeline(cache, cls, discardLogger())

	res, err := p.Classify(context.Background(), "http://unseen-phish.example/", "balanced")
	require.NoError(t, err)
	assert.True(t, res.IsPhishing)
	assert.False(t, res.Cached)
	assert.Len(t, cls.calls, 1)
	assert.Equal(t, 1, cache.sets, "write-back still attempted")
}

func TestPipelineClassifierFailurePropagates(t *testing.T) {
	for _, sentinel := range []error{ErrClassifierUnavailable, ErrClassifierTimeout} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			cache := newMemCache()
			cls := &stubClassifier{err: sentinel}
			p := NewPipeline(cache, cls, discardLogger())

			res, err := p.Classify(context.Background(), "https://example.com/login", "balanced")
			require.ErrorIs(t, err, sentinel)
			assert.Nil(t, res)
			assert.Zero(t, cache.sets, "failures are never cached")
		})
	}
}

func TestPipelineIncompleteVerdictNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"model not loaded"}`)
	}))
	defer srv.Close()

	cache := newMemCache()
	p := NewPipeline(cache, NewClient(ClientConfig{BaseURL: srv.URL}, discardLogger()), discardLogger())

	res, err := p.Classify(context.Background(), "https://example.com/login", "balanced")
	require.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Nil(t, res)
	assert.Zero(t, cache.sets)
	assert.Empty(t, cache.entries)
}

func TestPipelineInvalidRequest(t *testing.T) {
	cases := map[string]struct{ url, mode string }{
		"empty":        {"", "balanced"},
		"blank":        {"    ", "balanced"},
		"too short":    {"http://a", "balanced"},
		"unknown mode": {"https://example.com/", "paranoid"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cache := newMemCache()
			cache.getErr = errors.New("must not be called")
			cls := &stubClassifier{}
			p := NewPipeline(cache, cls, discardLogger())

			_, err := p.Classify(context.Background(), tc.url, tc.mode)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, cls.calls)
			assert.Zero(t, cache.sets)
		})
	}
}

func TestThreatLevelRank(t *testing.T) {
	assert.Greater(t, ThreatCritical.Rank(), ThreatHigh.Rank())
	assert.Greater(t, ThreatHigh.Rank(), ThreatMedium.Rank())
	assert.Greater(t, ThreatMedium.Rank(), ThreatLow.Rank())
	assert.Greater(t, ThreatLow.Rank(), ThreatSafe.Rank())
	assert.Equal(t, ThreatHigh.Rank(), ThreatLevel("high").Rank())
	assert.Equal(t, -1, ThreatLevel("bogus").Rank())
}
