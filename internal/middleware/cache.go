package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheConfig represents cache configuration
type CacheConfig struct {
	DefaultTTL time.Duration
	MaxSize    int64
	KeyPrefix  string
}

// CacheMiddleware caches successful GET responses in Redis, keyed by path and query. A nil
// client disables it.
func CacheMiddleware(client redis.Cmdable, config *CacheConfig, logger *logrus.Logger) gin.HandlerFunc {
	if client == nil {
		logger.Debug("Redis client not available, response caching disabled")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.Method != "GET" {
			c.Next()
			return
		}

		cacheKey := generateCacheKey(c, config.KeyPrefix)

		if data, err := client.Get(c.Request.Context(), cacheKey).Bytes(); err == nil {
			var response cachedResponse
			if err := json.Unmarshal(data, &response); err == nil {
				for key, value := range response.Headers {
					c.Header(key, value)
				}
				c.Header("X-Cache", "HIT")
				c.Data(response.StatusCode, response.ContentType, response.Body)
				c.Abort()
				return
			}
		}

		writer := &cacheWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 || writer.body.Len() == 0 {
			return
		}
		if config.MaxSize > 0 && int64(writer.body.Len()) > config.MaxSize {
			logger.WithField("size", writer.body.Len()).Debug("Response too large to cache")
			return
		}

		response := cachedResponse{
			StatusCode:  status,
			Headers:     make(map[string]string),
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		}
		for _, header := range []string{"Cache-Control", "ETag", "Last-Modified"} {
			if value := writer.Header().Get(header); value != "" {
				response.Headers[header] = value
			}
		}

		data, err := json.Marshal(response)
		if err != nil {
			return
		}

		ttl := config.DefaultTTL
		if ttl == 0 {
			ttl = 5 * time.Minute
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), time.Second)
		defer cancel()
		if err := client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
			logger.WithError(err).WithField("cache_key", cacheKey).Warn("Failed to cache response")
		}
	}
}

// cacheWriter tees the uncompressed response body.
type cacheWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cacheWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

type cachedResponse struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"body"`
}

// generateCacheKey creates a cache key for the request
func generateCacheKey(c *gin.Context, prefix string) string {
	components := []string{
		c.Request.Method,
		c.Request.URL.Path,
		c.Request.URL.Query().Encode(),
	}

	hash := sha256.Sum256([]byte(strings.Join(components, ":")))
	return prefix + ":" + hex.EncodeToString(hash[:16])
}
