package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const rateLimitPrefix = "rl:write:"

// WriteRateLimit caps unsafe requests per caller (or client IP for anonymous
// requests) per minute. With Redis the counter is shared across replicas;
// without it each process keeps its own token buckets.
func WriteRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 60
	}
	local := newKeyedLimiter(rate.Limit(float64(maxPerMin)/60), maxPerMin, 10*time.Minute)

	return func(c *fiber.Ctx) error {
		if isSafeMethod(c.Method()) {
			return c.Next()
		}
		key := CallerID(c)
		if key == "" {
			key = c.IP()
		}

		if cache == nil {
			if !local.Allow(key, time.Now()) {
				return tooManyRequests(c)
			}
			return c.Next()
		}

		redisKey := rateLimitPrefix + key
		cnt, err := cache.Incr(c.UserContext(), redisKey).Result()
		if err != nil {
			logger.Warn("rate limit counter unavailable", slog.Any("error", err))
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), redisKey, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

func tooManyRequests(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "60")
	return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, try again later")
}

// keyedLimiter keeps one token bucket per key and drops idle buckets.
type keyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int, idleTTL time.Duration) *keyedLimiter {
	return &keyedLimiter{
		limit:   limit,
		burst:   burst,
		idleTTL: idleTTL,
		byKey:   make(map[string]*bucket),
	}
}

// Allow consumes one token for key at now.
func (l *keyedLimiter) Allow(key string, now time.Time) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
