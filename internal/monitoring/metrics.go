package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempbox/backend/internal/domain"
)

// Metrics 聚合系统的 Prometheus 指标。
// promauto 在创建时自动注册到默认 Registry，无需手动注册。
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerRequestsTotal   *prometheus.CounterVec
	mailboxesGeneratedTotal *prometheus.CounterVec
	providerHealthy         *prometheus.GaugeVec
	streamSubscribers       prometheus.Gauge
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempbox_http_requests_total",
			Help: "HTTP 请求总数",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tempbox_http_request_duration_seconds",
			Help:    "HTTP 请求耗时分布",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		providerRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempbox_provider_requests_total",
			Help: "按服务商与操作统计的上游调用次数",
		}, []string{"provider", "operation", "status"}),
		mailboxesGeneratedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tempbox_mailboxes_generated_total",
			Help: "成功生成的邮箱总数",
		}, []string{"provider"}),
		providerHealthy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tempbox_provider_healthy",
			Help: "服务商健康状态 (1=健康, 0=不健康)",
		}, []string{"provider"}),
		streamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tempbox_stream_subscribers",
			Help: "当前实时推送订阅连接数",
		}),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderRequest 记录一次上游调用
func (m *Metrics) RecordProviderRequest(provider domain.ProviderName, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.providerRequestsTotal.WithLabelValues(string(provider), operation, status).Inc()
}

// RecordMailboxGenerated 记录一次成功的邮箱生成
func (m *Metrics) RecordMailboxGenerated(provider domain.ProviderName) {
	m.mailboxesGeneratedTotal.WithLabelValues(string(provider)).Inc()
}

// SetProviderHealthy 更新服务商健康状态
func (m *Metrics) SetProviderHealthy(provider domain.ProviderName, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.providerHealthy.WithLabelValues(string(provider)).Set(value)
}

// StreamSubscriberDelta 调整实时推送订阅计数
func (m *Metrics) StreamSubscriberDelta(delta float64) {
	m.streamSubscribers.Add(delta)
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
