package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisResponseCache struct {
	client redis.Cmdable
}

func NewRedisResponseCache(client redis.Cmdable) *RedisResponseCache {
	return &RedisResponseCache{client: client}
}

func (r *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

func (r *RedisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response of an earlier request that carried the
// same Idempotency-Key. Requests without the header pass through. Keys are scoped to the
// authenticated user and the route.
func IdempotencyMiddleware(cache ResponseCache, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		owner := ""
		if user := CurrentUser(c); user != nil {
			owner = user.Username
		}
		cacheKey := fmt.Sprintf("idempotency:%s:%s:%s", owner, c.Request.URL.Path, key)
		ctx := c.Request.Context()

		if cached, err := cache.Get(ctx, cacheKey); err == nil {
			var resp cachedResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(resp.Status, resp.ContentType, resp.Body)
				c.Abort()
				return
			}
		} else if err != redis.Nil {
			logger.Debug("Idempotency cache unavailable", zap.Error(err))
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError || status == http.StatusConflict {
			return
		}
		b, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := cache.Set(context.WithoutCancel(ctx), cacheKey, b, ttl); err != nil {
			logger.Warn("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}
