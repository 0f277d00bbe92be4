package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/storage"
)

// RateLimitOptions 限流参数：窗口内每 IP 最大请求数。
type RateLimitOptions struct {
	Requests int64
	Window   time.Duration
}

// RateLimit 按客户端 IP 的固定窗口限流中间件。
// 计数后端可以是内存或 Redis，多实例部署时用 Redis 共享计数。
// 计数器故障时放行请求：限流是保护手段，不应成为单点。
func RateLimit(counter storage.RateLimitRepository, opts RateLimitOptions, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := counter.IncrementRateLimit(c.ClientIP(), opts.Window)
		if err != nil {
			log.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > opts.Requests {
			c.Header("Retry-After", opts.Window.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}

		c.Next()
	}
}
