package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempinbox/backend/internal/storage"
)

// Pinger Redis 等外部依赖的连通性检查接口。
type Pinger interface {
	Health() error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	// 存储连通性检查
	hc.health.AddReadinessCheck("store", func() error {
		return hc.store.Health()
	})

	// goroutine 泄漏检查
	hc.health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))

	return hc
}

// AddDependency 追加一个外部依赖的就绪检查。
func (hc *HealthChecker) AddDependency(name string, dep Pinger) {
	hc.health.AddReadinessCheck(name, func() error {
		return dep.Health()
	})
}

// LiveEndpoint 返回存活探针处理器
func (hc *HealthChecker) LiveEndpoint() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyEndpoint 返回就绪探针处理器
func (hc *HealthChecker) ReadyEndpoint() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}
