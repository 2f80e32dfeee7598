package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"soundcrate/internal/api"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/observability/metrics"
)

const loginPath = "/api/users/login"

// RateLimitConfig bounds overall request throughput and login attempts per
// client IP. Login counters move to Redis when RedisAddr is set so that
// several replicas share them.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	LoginLimit    int
	LoginWindow   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global      *rate.Limiter
	loginLimit  int
	loginWindow time.Duration

	loginMu       sync.Mutex
	loginLimiters map[string]*ipLimiter
	now           func() time.Time

	redis     *redisStore
	closeOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		loginLimit:    cfg.LoginLimit,
		loginWindow:   cfg.LoginWindow,
		loginLimiters: make(map[string]*ipLimiter),
		now:           time.Now,
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(math.Max(1, cfg.GlobalRPS))
		}
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}
	if rl.loginLimit < 0 {
		rl.loginLimit = 0
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.loginLimit > 0 {
		rl.redis = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
	}
	return rl
}

// AllowRequest consumes one token from the global bucket.
func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowLogin counts one attempt for key and reports how long the caller
// should wait when the attempt is refused.
func (r *rateLimiter) AllowLogin(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if r.redis != nil {
		return r.redis.Allow(ctx, "soundcrate:login:"+key, r.loginLimit, r.loginWindow)
	}

	r.loginMu.Lock()
	now := r.now()
	entry, exists := r.loginLimiters[key]
	if !exists {
		every := r.loginWindow / time.Duration(r.loginLimit)
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Every(every), r.loginLimit)}
		r.loginLimiters[key] = entry
	}
	entry.lastSeen = now
	r.cleanupLocked(now)
	r.loginMu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (r *rateLimiter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-2 * r.loginWindow)
	for key, entry := range r.loginLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.loginLimiters, key)
		}
	}
}

// Ping reports whether the shared login store is reachable.
func (r *rateLimiter) Ping(ctx context.Context) error {
	if r == nil || r.redis == nil {
		return nil
	}
	return r.redis.Ping(ctx)
}

func (r *rateLimiter) Close() error {
	if r == nil || r.redis == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() { err = r.redis.Close() })
	return err
}

func rateLimitMiddleware(rl *rateLimiter, recorder *metrics.Recorder, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			recorder.RateLimited("global")
			api.WriteMessage(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == loginPath {
			allowed, retryAfter, err := rl.AllowLogin(r.Context(), extractClientIP(r))
			if err != nil {
				logging.LoggerFromContext(r.Context()).Error("rate limiter failure", "error", err)
				api.WriteMessage(w, http.StatusServiceUnavailable, "Rate limiter unavailable")
				return
			}
			if !allowed {
				recorder.RateLimited("login")
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				}
				api.WriteMessage(w, http.StatusTooManyRequests, "Too many login attempts, please try again later")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// redisStore keeps fixed-window login counters in Redis.
type redisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func newRedisStore(addr, password string, db int, timeout time.Duration) *redisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &redisStore{client: client, timeout: timeout}
}

// Allow increments key and starts its expiry on the first hit of a window.
func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if window < time.Second {
		window = time.Second
	}
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("redis expire: %w", err)
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis ttl: %w", err)
	}
	if ttl <= 0 {
		// The key lost its expiry, so start the window again.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			logging.LoggerFromContext(ctx).Warn("failed to reset login window", "key", key, "error", err)
		}
		ttl = window
	}
	return false, ttl, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
