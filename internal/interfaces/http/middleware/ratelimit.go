package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// KeyFunc extracts the client key; nil uses the API key id, then the IP.
	KeyFunc func(r *http.Request) string
	// SkipPaths bypass limiting.
	SkipPaths []string
	// IdleTimeout evicts limiters of clients not seen for this long.
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig returns the API server defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		IdleTimeout:       10 * time.Minute,
	}
}

// ClientKey identifies the caller: the authenticated API key id when present,
// otherwise the remote IP (already rewritten by chimw.RealIP).
func ClientKey(r *http.Request) string {
	if id := ContextClientID(r.Context()); id != "" {
		return "key:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Limits can be changed at
// runtime; existing buckets are updated in place.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a limiter and starts its eviction loop.
func NewRateLimiter(rps float64, burst int, idleTimeout time.Duration) *RateLimiter {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	l := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idleTimeout,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Reserve takes one token for key. It returns whether the request may
// proceed and, if not, how long the client should wait.
func (l *RateLimiter) Reserve(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Remaining reports the tokens left for key, rounded down.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	c, ok := l.clients[key]
	burst := l.burst
	l.mu.Unlock()
	if !ok {
		return burst
	}
	n := int(c.limiter.TokensAt(l.now()))
	if n < 0 {
		n = 0
	}
	return n
}

// SetLimits applies new limits to every client.
func (l *RateLimiter) SetLimits(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = rate.Limit(rps)
	l.burst = burst
	now := l.now()
	for _, c := range l.clients {
		c.limiter.SetLimitAt(now, l.limit)
		c.limiter.SetBurstAt(now, burst)
	}
}

// Limits returns the current limits.
func (l *RateLimiter) Limits() (float64, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.limit), l.burst
}

// ClientCount returns the number of tracked clients.
func (l *RateLimiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *RateLimiter) evictLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evict()
		case <-l.stop:
			return
		}
	}
}

func (l *RateLimiter) evict() {
	threshold := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(threshold) {
			delete(l.clients, key)
		}
	}
}

// Stop ends the eviction loop.
func (l *RateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RateLimit answers 429 with Retry-After once a client exceeds its bucket.
func RateLimit(limiter *RateLimiter, config RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			allowed, wait := limiter.Reserve(key)
			_, burst := limiter.Limits()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))

			if !allowed {
				secs := int(wait.Seconds() + 0.999)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, errors.New(errors.ErrCodeTooManyRequests, "rate limit exceeded, please retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

//Personal.AI order the ending
