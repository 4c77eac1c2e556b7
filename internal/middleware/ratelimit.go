package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/pkg/clientip"
)

const (
	// RateLimitWindow is 120 seconds
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 250
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "sparklink:ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "sparklink:blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked after exceeding the limit
	BlockedIPDuration = 15 * time.Minute
)

// RedisRateLimit is a fixed-window limiter shared by every instance. An IP over
// the limit is blocked for BlockedIPDuration. Redis failures fail open.
func RedisRateLimit(client *redis.Client, trustProxy bool, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientip.FromRequest(r, trustProxy)

			blockedKey := BlockedIPKeyPrefix + ip
			blocked, err := client.Exists(ctx, blockedKey).Result()
			if err == nil && blocked > 0 {
				response.Error(w, apierrors.ErrRateLimited.WithMessage("Your IP has been temporarily blocked due to excessive requests. Please try again later."))
				return
			}

			key := RateLimitKeyPrefix + ip
			count, err := client.Incr(ctx, key).Result()
			if err == nil && count == 1 {
				err = client.Expire(ctx, key, RateLimitWindow).Err()
			}
			if err != nil {
				log.Warnw("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > RateLimitMaxRequests {
				if err := client.Set(ctx, blockedKey, "1", BlockedIPDuration).Err(); err != nil {
					log.Warnw("failed to block ip", "ip", ip, "error", err)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(RateLimitWindow.Seconds())))
				response.Error(w, apierrors.ErrRateLimited.WithMessage("Rate limit exceeded. Your IP has been temporarily blocked. Please try again later."))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(RateLimitMaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(RateLimitMaxRequests-count, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(RateLimitWindow).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}
