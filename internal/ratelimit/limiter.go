package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/phishguard/gateway/internal/netguard"
)

const (
	// CleanupInterval is how often idle client buckets are swept.
	CleanupInterval = time.Minute
	// IdleTTL is how long a client bucket survives without requests.
	IdleTTL = 3 * time.Minute
)

// RejectFunc writes the response for a rate-limited request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is an in-memory token bucket per client key.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	reject   RejectFunc
	now      func() time.Time
}

// New creates a limiter allowing rps requests per second per client with the
// given burst. A nil reject writes a bare 429.
func New(rps float64, burst int, reject RejectFunc) *Limiter {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		reject:   reject,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now. When it may not, it also returns
// how long until a token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware limits by client IP. chi's RealIP must run first so RemoteAddr
// reflects the forwarded address.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if ip := netguard.ParseClientIP(r.RemoteAddr); ip != nil {
			key = ip.String()
		}

		if ok, retryAfter := l.Allow(key); !ok {
			l.reject(w, r, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many went.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			n++
		}
	}
	return n
}

// CleanupLoop sweeps idle buckets every CleanupInterval until ctx is done.
func (l *Limiter) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// RetryAfterHeader formats d as a whole number of seconds, rounded up, for the
// Retry-After header.
func RetryAfterHeader(d time.Duration) string {
	return retryAfterSeconds(d)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
