package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ErrRateLimited is reported to clients that exceed their request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter keeps one token bucket per client IP. Buckets of clients idle
// for longer than the idle period are evicted.
type RateLimiter struct {
	mu       sync.Mutex
	visitors *cache.Cache
	interval time.Duration
	burst    int
	idle     time.Duration
}

// NewRateLimiter allows perMinute requests per client, refilled evenly, with
// bursts up to perMinute.
func NewRateLimiter(perMinute int, idle time.Duration) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &RateLimiter{
		visitors: cache.New(idle, idle),
		interval: time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		idle:     idle,
	}
}

// Allow consumes one token from the client's bucket.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := rl.visitors.Get(client); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Every(rl.interval), rl.burst)
	}
	// Re-set on every hit to slide the idle expiry.
	rl.visitors.Set(client, lim, rl.idle)
	return lim.Allow()
}

// Handler rejects requests over the limit with 429 and the RATE001 body.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			msg := dividend.MapError(ErrRateLimited)
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			writeError(w, http.StatusTooManyRequests, errorBody{
				Error:   ErrRateLimited.Error(),
				Message: msg.Message,
				Action:  msg.Action,
				Code:    msg.Code,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the whole seconds until one token is back.
func (rl *RateLimiter) retryAfter() int {
	secs := int(math.Ceil(rl.interval.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
