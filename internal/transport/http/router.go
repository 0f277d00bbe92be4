package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MessageService *service.MessageService
	WebSocketHub   *websocket.Hub              // 可选
	Metrics        *monitoring.Metrics         // 可选
	RateLimiter    storage.RateLimitRepository // 可选
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.Config.Ingest.MaxBodyBytes))

	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.MessageService, deps.Logger)

	router.GET("/health", handler.Health)

	api := router.Group("/api")

	// 写入路径做按 IP 限流，读取路径留给前端轮询
	if deps.RateLimiter != nil && deps.Config.RateLimit.Enabled {
		limited := api.Group("")
		limited.Use(middleware.RateLimit(deps.RateLimiter, middleware.RateLimitOptions{
			Requests: deps.Config.RateLimit.Requests,
			Window:   deps.Config.RateLimit.Window,
		}, deps.Logger))

		limited.POST("/simulate-email", handler.SimulateEmail)
		limited.POST("/webhook/email", handler.ReceiveWebhook)
	} else {
		api.POST("/simulate-email", handler.SimulateEmail)
		api.POST("/webhook/email", handler.ReceiveWebhook)
	}

	api.GET("/emails/:address", handler.ListEmails)
	api.GET("/email/:id", handler.GetEmail)
	api.DELETE("/email/:id", handler.DeleteEmail)
	api.POST("/cleanup", handler.Cleanup)
	api.GET("/stats", handler.Stats)

	if deps.WebSocketHub != nil {
		api.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	return router
}
