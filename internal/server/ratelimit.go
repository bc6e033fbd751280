package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cvcoach/internal/errors"

	"golang.org/x/time/rate"
)

// limiterIdleAge is how long a bucket may go unused before it is evicted
const limiterIdleAge = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key (API key or IP).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	done    chan struct{}
	logger  *errors.Logger
}

// NewRateLimiter allows requestsPerMin per key with bursts of up to
// burstCapacity. Idle buckets are evicted in the background until Close.
func NewRateLimiter(requestsPerMin int, burstCapacity int, logger *errors.Logger) *RateLimiter {
	m := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requestsPerMin) / 60.0),
		burst:   burstCapacity,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go m.evictLoop(limiterIdleAge)
	return m
}

func (m *RateLimiter) limiterFor(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Reserve takes a token for key if one is available now. When it is not,
// the reservation is cancelled and the wait until the next token is
// returned for Retry-After.
func (m *RateLimiter) Reserve(key string) (bool, time.Duration) {
	r := m.limiterFor(key).Reserve()
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// GetStats returns current rate limiter statistics
func (m *RateLimiter) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_limiters": len(m.buckets),
		"rate_per_second": float64(m.rate),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
	}
}

func (m *RateLimiter) evictLoop(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.evictIdle(now, idle)
		case <-m.done:
			return
		}
	}
}

// evictIdle drops buckets not used since now-idle
func (m *RateLimiter) evictIdle(now time.Time, idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(m.buckets, key)
			evicted++
		}
	}
	if m.logger != nil && evicted > 0 {
		m.logger.Debug("Rate limiter buckets evicted",
			"evicted", evicted,
			"remaining", len(m.buckets))
	}
	return evicted
}

// Close stops the eviction goroutine.
func (m *RateLimiter) Close() {
	close(m.done)
}

// rateLimitMiddleware creates rate limiting middleware using golang.org/x/time/rate.
// onLimited is called for every rejected request.
func (s *Server) rateLimitMiddleware(onLimited func(*http.Request)) func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimit == nil || !s.RateLimit.Enabled || s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rateLimitKey := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if rateLimitKey == "" {
				next(w, r)
				return
			}

			allowed, retryAfter := s.RateLimiter.Reserve(rateLimitKey)
			if !allowed {
				s.Logger.Info("Rate limit exceeded",
					"key", maskRateLimitKey(rateLimitKey),
					"endpoint", r.URL.Path,
					"client_ip", getClientIP(r))
				if onLimited != nil {
					onLimited(r)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// getRateLimitKey picks the bucket for a request: API key first when
// enabled, then client IP.
func getRateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey
		}
	}

	if byIP {
		return "ip:" + getClientIP(r)
	}

	return ""
}

// maskRateLimitKey keeps API keys out of logs
func maskRateLimitKey(key string) string {
	if apiKey, ok := strings.CutPrefix(key, "api:"); ok {
		return "api:" + maskAPIKey(apiKey)
	}
	return key
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	// Split by comma and check each IP
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if parsed := net.ParseIP(ip); parsed != nil {
			return ip
		}
	}
	return ""
}
