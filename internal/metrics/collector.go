package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 持有服务的全部 Prometheus 指标。
// 指标分三组：HTTP 请求、对话轮次、会话存量。
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	turnTokensUsed *prometheus.CounterVec

	sessionsActive prometheus.Gauge
	sessionResets  prometheus.Counter

	logger *zap.Logger
}

// NewCollector 在默认 registry 上注册指标，服务进程用这个入口
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 在指定 registry 上注册指标，测试里传独立 registry 避免串号
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	f := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, path and status class",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Wall time spent serving each HTTP request",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpRequestSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "Request body size distribution",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),

		httpResponseSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "Response body size distribution",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "path"}),

		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of dialogue turns processed",
		}, []string{"model", "status", "terminal"}),

		turnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Dialogue turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model", "status"}),

		turnTokensUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_tokens_used_total",
			Help:      "Total number of tokens consumed by dialogue turns",
		}, []string{"model", "type"}), // type: prompt, completion

		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently held in the store",
		}),

		sessionResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Total number of session resets",
		}),
	}

	logger.Info("metrics registered", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 指标记录
// =============================================================================

// RecordHTTPRequest 记录一次 HTTP 请求，状态码归并成 2xx/4xx 这类档位
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordTurn 记录一个对话轮次，token 消耗按 prompt/completion 分开累计
func (c *Collector) RecordTurn(model, status string, terminal bool, duration time.Duration, promptTokens, completionTokens int) {
	c.turnsTotal.WithLabelValues(model, status, boolLabel(terminal)).Inc()
	c.turnDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	c.turnTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.turnTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// SetActiveSessions 记录当前存量会话数
func (c *Collector) SetActiveSessions(count int) {
	c.sessionsActive.Set(float64(count))
}

// RecordSessionReset 记录一次会话重置
func (c *Collector) RecordSessionReset() {
	c.sessionResets.Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusClass 把具体状态码归并成档位 label，控制基数
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
