package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type windowKey struct {
	client string
	window int64
}

// RateLimiter is a fixed-window counter per client address.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	counters       map[windowKey]int
	now            func() time.Time
	mu             sync.Mutex
}

// NewRateLimiter panics on a window under one second, which config
// validation rules out.
func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	if windowDuration < time.Second {
		panic("rate limit window must be at least 1s")
	}
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		counters:       make(map[windowKey]int),
		now:            time.Now,
	}
}

func (rl *RateLimiter) clientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) key(client string, now time.Time) windowKey {
	return windowKey{client: client, window: now.Unix() / int64(rl.windowDuration.Seconds())}
}

func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := rl.key(client, rl.now())
	count, exists := rl.counters[key]
	if !exists {
		// a new window starts, forget the client's older ones
		for k := range rl.counters {
			if k.client == client {
				delete(rl.counters, k)
			}
		}
		rl.counters[key] = 1
		return true
	}
	if count >= rl.maxRequests {
		return false
	}
	rl.counters[key] = count + 1
	return true
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := rl.clientID(c)

		if !rl.Allow(client) {
			log.Warn().
				Str("client_ip", client).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
