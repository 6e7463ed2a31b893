package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// operationCost weights the write operations: a batch ingest burns more
// of the per-minute allowance than a single decide call. Unlisted paths
// cost one.
var operationCost = map[string]int{
	"/api/v1/ingest": 5,
	"/api/v1/decide": 2,
}

// RateLimiter applies a fixed-window per-client limit backed by Redis
// so all replicas share one window. Redis failures fail open.
type RateLimiter struct {
	client    *redis.Client
	perMinute int
	logger    *zap.Logger
}

// NewRateLimiter builds a limiter with the given per-minute allowance.
func NewRateLimiter(client *redis.Client, perMinute int, logger *zap.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{
		client:    client,
		perMinute: perMinute,
		logger:    logger.Named("ratelimit"),
	}
}

var windowScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[2])
	if current == tonumber(ARGV[2]) then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Middleware enforces the limit per client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := operationCost[r.URL.Path]
		if cost == 0 {
			cost = 1
		}
		key := "threatgate:ratelimit:" + clientIP(r)

		used, err := windowScript.Run(r.Context(), rl.client, []string{key}, 60000, cost).Int()
		if err != nil {
			rl.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.perMinute - used
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if used > rl.perMinute {
			ttl, _ := rl.client.TTL(r.Context(), key).Result()
			if ttl < 0 {
				ttl = time.Minute
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate_limit_exceeded","retry_after":%d}`, int(ttl.Seconds()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
