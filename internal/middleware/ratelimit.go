package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitAlgorithm selects the limiter algorithm
type RateLimitAlgorithm string

const (
	// TokenBucket refills continuously; tolerates short bursts
	TokenBucket RateLimitAlgorithm = "token_bucket"
	// FixedWindow counts requests per aligned window
	FixedWindow RateLimitAlgorithm = "fixed_window"
)

// RateLimitType selects what the limit is keyed on
type RateLimitType string

const (
	RateLimitByIP       RateLimitType = "ip"
	RateLimitByUser     RateLimitType = "user"
	RateLimitByEndpoint RateLimitType = "endpoint"
)

// RateLimitConfig describes one limit
type RateLimitConfig struct {
	Limit     int
	Window    int // seconds
	Algorithm RateLimitAlgorithm
	Type      RateLimitType
	// KeyFunc overrides Type-based key derivation when set
	KeyFunc func(*gin.Context) string
}

// RateLimitResult is the outcome of one limiter check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   int64
	Limit     int
}

// RateLimiter checks whether a request may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error)
}

// RedisRateLimiter implements RateLimiter on Redis with Lua scripts, so the
// check is atomic across API instances
type RedisRateLimiter struct {
	redis *redis.Client
}

// NewRedisRateLimiter creates a Redis-backed rate limiter
func NewRedisRateLimiter(redis *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{redis: redis}
}

// Allow checks the limit for key
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	switch config.Algorithm {
	case FixedWindow:
		return r.fixedWindow(ctx, key, config)
	default:
		return r.tokenBucket(ctx, key, config)
	}
}

func (r *RedisRateLimiter) tokenBucket(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now().Unix()
	bucketKey := fmt.Sprintf("ratelimit:token:%s", key)

	script := `
		local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last_update')
		local capacity = tonumber(ARGV[1])
		local rate = tonumber(ARGV[2])
		local now = tonumber(ARGV[3])

		local tokens = tonumber(bucket[1]) or capacity
		local last_update = tonumber(bucket[2]) or now

		local elapsed = now - last_update
		local new_tokens = math.min(capacity, tokens + elapsed * rate)

		local allowed = new_tokens >= 1
		local remaining = 0

		if allowed then
			new_tokens = new_tokens - 1
			remaining = math.floor(new_tokens)
		end

		redis.call('HMSET', KEYS[1], 'tokens', new_tokens, 'last_update', now)
		redis.call('EXPIRE', KEYS[1], math.ceil(capacity / rate) + 1)

		return {allowed and 1 or 0, remaining, capacity}
	`

	ratePerSecond := float64(config.Limit) / float64(config.Window)

	result, err := r.redis.Eval(ctx, script, []string{bucketKey},
		config.Limit, ratePerSecond, now).Result()
	if err != nil {
		return nil, err
	}

	values := result.([]interface{})
	return &RateLimitResult{
		Allowed:   values[0].(int64) == 1,
		Remaining: int(values[1].(int64)),
		Limit:     int(values[2].(int64)),
		ResetAt:   now + int64(config.Window),
	}, nil
}

func (r *RedisRateLimiter) fixedWindow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now().Unix()
	window := now / int64(config.Window)
	windowKey := fmt.Sprintf("ratelimit:fixed:%s:%d", key, window)

	script := `
		local current = tonumber(redis.call('GET', KEYS[1]) or 0)
		local limit = tonumber(ARGV[1])
		local ttl = tonumber(ARGV[2])

		local allowed = current < limit
		local remaining = limit - current - 1

		if allowed then
			redis.call('INCR', KEYS[1])
			if current == 0 then
				redis.call('EXPIRE', KEYS[1], ttl)
			end
		else
			remaining = -1
		end

		return {allowed and 1 or 0, remaining, limit}
	`

	result, err := r.redis.Eval(ctx, script, []string{windowKey},
		config.Limit, config.Window+1).Result()
	if err != nil {
		return nil, err
	}

	values := result.([]interface{})
	return &RateLimitResult{
		Allowed:   values[0].(int64) == 1,
		Remaining: int(values[1].(int64)),
		Limit:     int(values[2].(int64)),
		ResetAt:   (window + 1) * int64(config.Window),
	}, nil
}

// RateLimitMiddleware applies one RateLimitConfig as a gin middleware
type RateLimitMiddleware struct {
	limiter RateLimiter
	config  *RateLimitConfig
}

// NewRateLimitMiddleware creates a rate limit middleware
func NewRateLimitMiddleware(limiter RateLimiter, config *RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, config: config}
}

// Middleware returns the gin handler. Limiter outages fail open.
func (m *RateLimitMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := m.generateKey(c)

		result, err := m.limiter.Allow(c.Request.Context(), key, m.config)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": result.ResetAt - time.Now().Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (m *RateLimitMiddleware) generateKey(c *gin.Context) string {
	if m.config.KeyFunc != nil {
		return m.config.KeyFunc(c)
	}

	switch m.config.Type {
	case RateLimitByUser:
		userID, exists := c.Get("user_id")
		if !exists {
			return "ip:" + clientIP(c)
		}
		return fmt.Sprintf("user:%v", userID)
	case RateLimitByEndpoint:
		return fmt.Sprintf("endpoint:%s:%s", c.Request.Method, c.Request.URL.Path)
	default:
		return clientIP(c)
	}
}

func clientIP(c *gin.Context) string {
	xff := c.GetHeader("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := c.GetHeader("X-Real-Ip")
	if xri != "" {
		return xri
	}

	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
