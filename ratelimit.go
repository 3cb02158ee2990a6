package apikit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Rate            float64                                      // requests per second
	Burst           int                                          // max burst
	KeyFunc         func(r *http.Request) string                 // default: remote IP
	OnLimit         func(w http.ResponseWriter, r *http.Request) // default: 429 error envelope
	CleanupInterval time.Duration                                // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration                                // remove limiters idle longer than this (default: 5m)
}

// RateLimit returns middleware that applies per-key rate limiting. Rejected
// requests get a Retry-After header and, by default, a TooManyRequests
// error envelope.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = remoteHost
	}
	if cfg.OnLimit == nil {
		cfg.OnLimit = tooManyRequests
	}

	store := newLimiterStore(cfg)
	retryAfter := strconv.FormatFloat(math.Max(1, math.Ceil(1/cfg.Rate)), 'f', 0, 64)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.allow(cfg.KeyFunc(r), time.Now()) {
				w.Header().Set("Retry-After", retryAfter)
				cfg.OnLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	id := GetRequestID(r.Context())
	he := ClientError(http.StatusTooManyRequests, CodeTooManyRequests, "Too Many Requests")
	//nolint:errcheck // best-effort error write
	writeResponse(w, errorEnvelope(he, id), id)
}

// limiterStore holds one token bucket per key and prunes idle ones lazily.
type limiterStore struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	interval    time.Duration
	maxIdle     time.Duration
	entries     map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	s := &limiterStore{
		limit:    rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
		interval: cfg.CleanupInterval,
		maxIdle:  cfg.MaxIdle,
		entries:  make(map[string]*limiterEntry),
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.maxIdle <= 0 {
		s.maxIdle = 5 * time.Minute
	}
	return s
}

func (s *limiterStore) allow(key string, now time.Time) bool {
	s.mu.Lock()
	if now.Sub(s.lastCleanup) >= s.interval {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.maxIdle {
				delete(s.entries, k)
			}
		}
		s.lastCleanup = now
	}

	entry, ok := s.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = entry
	}
	entry.lastSeen = now
	s.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
