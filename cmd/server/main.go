package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempinbox/backend/internal/config"
	"tempinbox/backend/internal/health"
	"tempinbox/backend/internal/ingest"
	"tempinbox/backend/internal/logger"
	"tempinbox/backend/internal/monitoring"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/smtp"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
	"tempinbox/backend/internal/storage/redis"
	sqlstore "tempinbox/backend/internal/storage/sql"
	httptransport "tempinbox/backend/internal/transport/http"
	"tempinbox/backend/internal/websocket"
)

// main 启动一次性收件箱服务：HTTP API，可选的 SMTP 接收与 Redis 限流。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development, cfg.Log.File)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting tempinbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 限流计数器：多实例部署时用 Redis 共享，否则用进程内计数
	var rateLimiter storage.RateLimitRepository
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(redis.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to Redis: %v", err))
		}
		defer redisClient.Close()
		rateLimiter = redisClient
		healthChecker.AddDependency("redis", redisClient)
	} else {
		rateLimiter = memory.NewRateLimiter()
	}

	// WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 服务层
	normalizer := ingest.NewNormalizer(ingest.Policy{
		MaxFieldLength: cfg.Ingest.MaxFieldLength,
	})
	messageService := service.NewMessageService(store, store, normalizer, log)
	messageService.SetNotifier(wsHub)
	messageService.SetMetrics(metrics)
	messageService.SetListLimit(cfg.Store.ListLimit)

	// HTTP 路由
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MessageService: messageService,
		WebSocketHub:   wsHub,
		Metrics:        metrics,
		RateLimiter:    rateLimiter,
		Logger:         log,
	})

	// 健康检查探针（用于 Kubernetes 等），/health 已在 router.go 中注册
	router.GET("/health/live", gin.WrapF(healthChecker.LiveEndpoint()))
	router.GET("/health/ready", gin.WrapF(healthChecker.ReadyEndpoint()))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 服务器（可选）
	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		smtpBackend := smtp.NewBackend(messageService, cfg.SMTP.AllowedDomains, cfg.SMTP.MaxMessageSize, log)
		smtpBackend.SetConnectionLimiter(smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.MaxConnRate))

		smtpServer = gosmtp.NewServer(smtpBackend)
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.AllowInsecureAuth = cfg.Log.Development
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageSize
		smtpServer.MaxRecipients = 50
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
				zap.Strings("allowed_domains", cfg.SMTP.AllowedDomains),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 定时清理过期邮件 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Store.CleanupInterval)
		defer ticker.Stop()

		log.Info("starting message retention task",
			zap.Duration("interval", cfg.Store.CleanupInterval),
			zap.Duration("retention", cfg.Store.Retention),
		)

		for {
			select {
			case <-groupCtx.Done():
				log.Info("retention task stopped")
				return nil
			case <-ticker.C:
				if _, err := messageService.Cleanup(cfg.Store.Retention); err != nil {
					log.Error("failed to evict expired messages", zap.Error(err))
				}
				if stats, err := messageService.Stats(); err == nil {
					metrics.UpdateMessagesStored(stats.TotalMessages)
				}
			}
		}
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
