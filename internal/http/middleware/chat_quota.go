package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

const chatQuotaPrefix = "medbook:chat_quota:"

// ChatQuota caps chat turns per user in a fixed window shared across API
// instances through Redis.
type ChatQuota struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *logging.Logger
}

func NewChatQuota(client *redis.Client, limit int, window time.Duration, logger *logging.Logger) *ChatQuota {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatQuota{client: client, limit: limit, window: window, logger: logger}
}

// Take consumes one turn for userID and reports whether it was allowed.
func (q *ChatQuota) Take(ctx context.Context, userID string) (bool, int, error) {
	if q == nil || q.client == nil || q.limit <= 0 {
		return true, -1, nil
	}
	bucket := time.Now().UnixNano() / int64(q.window)
	key := fmt.Sprintf("%s%s:%d", chatQuotaPrefix, userID, bucket)

	pipe := q.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, q.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("middleware: chat quota: %w", err)
	}
	used := int(incr.Val())
	remaining := q.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used <= q.limit, remaining, nil
}

// Middleware applies the quota to the authenticated caller. Redis errors
// fail open.
func (q *ChatQuota) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := tools.CallerFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		allowed, remaining, err := q.Take(r.Context(), caller.UserID)
		if err != nil {
			q.logger.Warn("chat quota unavailable", "user_id", caller.UserID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(q.window.Seconds())))
			http.Error(w, "chat limit reached, please wait a moment", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
