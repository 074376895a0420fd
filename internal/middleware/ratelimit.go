package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit is a sliding window over a sorted set. Scores are unix
// milliseconds.
// KEYS[1]=bucket, ARGV: now, windowStart, ttlSec, member, limit.
// Returns the count including this request, or -1 when over the limit.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local ttlSec = tonumber(ARGV[3])
local member = ARGV[4]
local limit = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, ttlSec)
  return count + 1
end
return -1
`

// RedisRateLimit limits each customer_id found in the JSON body to limit
// requests per window, falling back to the client IP. Redis errors let the
// request through.
func RedisRateLimit(rdb *rd.Client, route string, limit int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	ttlSec := int64(window / time.Second)
	if window%time.Second != 0 {
		ttlSec++
	}
	return func(c *gin.Context) {
		var key string
		if id := extractCustomerID(c); id != "" {
			key = redis.RateLimitKey(route, "customer", id)
		} else {
			key = redis.RateLimitKey(route, "ip", c.ClientIP())
		}

		now := time.Now().UnixMilli()
		windowStart := now - window.Milliseconds()
		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			now, windowStart, ttlSec, uuid.NewString(), limit).Int()
		if err != nil {
			logger.Warn("rate_limit_unavailable", "key", key, "err", err)
			c.Next()
			return
		}
		if res < 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}

// extractCustomerID peeks at customer_id and restores the body for the
// handler.
func extractCustomerID(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		return ""
	}
	return req.CustomerID
}
