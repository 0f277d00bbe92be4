package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 入站处理指标
	IngestTotal      *prometheus.CounterVec
	TruncationsTotal prometheus.Counter
	EvictionsTotal   prometheus.Counter

	// 存储指标
	MessagesStored prometheus.Gauge

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempinbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		IngestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempinbox_ingest_total",
				Help: "Inbound payload normalization outcomes by shape and status",
			},
			[]string{"shape", "status"},
		),

		TruncationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_truncations_total",
				Help: "Messages stored with truncated body fields",
			},
		),

		EvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_evictions_total",
				Help: "Messages removed by age-based eviction",
			},
		),

		MessagesStored: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempinbox_messages_stored",
				Help: "Current number of stored messages",
			},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempinbox_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ObserveIngest 记录一次入站归一化结果
func (m *Metrics) ObserveIngest(shape string, status string) {
	if shape == "" {
		shape = "none"
	}
	m.IngestTotal.WithLabelValues(shape, status).Inc()
}

// ObserveTruncation 记录一次正文截断
func (m *Metrics) ObserveTruncation() {
	m.TruncationsTotal.Inc()
}

// ObserveEviction 记录一次过期清理
func (m *Metrics) ObserveEviction(count int) {
	m.EvictionsTotal.Add(float64(count))
}

// UpdateMessagesStored 更新当前邮件总数
func (m *Metrics) UpdateMessagesStored(count int64) {
	m.MessagesStored.Set(float64(count))
}

// RecordPanic 记录一次 panic 恢复
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
