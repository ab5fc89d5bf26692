package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const defaultLimiterCleanup = 5 * time.Minute

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per caller in process memory.
type RateLimiter struct {
	limit           rate.Limit
	burst           int
	retryAfter      int
	cleanupInterval time.Duration
	logg            *logger.Logger

	mu       sync.RWMutex
	limiters map[string]*userLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter starts a limiter and its background cleanup loop. Call Stop
// when the server shuts down.
func NewRateLimiter(cfg config.RateLimitConfig, logg *logger.Logger) *RateLimiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 120
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limit:           rate.Limit(float64(rpm) / 60.0),
		burst:           burst,
		retryAfter:      int(math.Ceil(60.0 / float64(rpm))),
		cleanupInterval: defaultLimiterCleanup,
		logg:            logg,
		limiters:        make(map[string]*userLimiter),
		stopCh:          make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware throttles per authenticated user, or per client IP when the
// request carries no identity.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := rateLimitSubject(r)
			if !rl.limiterFor(subject).Allow() {
				writeRateLimited(r.Context(), rl.logg, w, subject, "token_bucket", rl.retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount reports how many callers currently hold a bucket.
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(subject string) *rate.Limiter {
	now := time.Now()

	rl.mu.RLock()
	ul, ok := rl.limiters[subject]
	rl.mu.RUnlock()
	if ok {
		rl.mu.Lock()
		ul.lastAccess = now
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if ul, ok := rl.limiters[subject]; ok {
		ul.lastAccess = now
		return ul.limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[subject] = &userLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.cleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for subject, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.limiters, subject)
		}
	}
}

type windowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// SharedRateLimit enforces a fixed one-minute window in Redis so every API
// replica counts against the same budget. Store errors let the request
// through.
func SharedRateLimit(store windowStore, cfg config.RateLimitConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	limit := int64(cfg.RequestsPerMinute + cfg.Burst)
	return func(next http.Handler) http.Handler {
		if store == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := rateLimitSubject(r)
			allowed, count, err := store.FixedWindowAllow(r.Context(), "api:"+subject, limit, time.Minute)
			if err != nil {
				if logg != nil {
					logg.Error(r.Context(), "rate_limit.store_failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "count", count)
				}
				writeRateLimited(ctx, logg, w, subject, "fixed_window", 60)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, subject, kind string, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"subject":    subject,
			"limit_type": kind,
		}), "rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, retry later"))
}

func rateLimitSubject(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
