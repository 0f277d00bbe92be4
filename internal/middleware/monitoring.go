package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tempinbox/backend/internal/monitoring"
)

// HTTPMetrics HTTP 请求指标采集中间件。
// endpoint 标签用路由模板（/api/email/:id）而非实际路径，避免标签基数爆炸。
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
