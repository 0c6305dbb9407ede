package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
// 所有 Record*/Update* 方法对 nil 接收者安全，未启用监控时可直接传 nil。
type Monitor struct {
	registry *prometheus.Registry

	// 行情流指标
	streamState       prometheus.Gauge
	streamTransitions *prometheus.CounterVec
	streamMessages    *prometheus.CounterVec
	streamDropped     *prometheus.CounterVec
	streamReconnects  prometheus.Counter
	streamLastUpdate  prometheus.Gauge

	// 缓存指标
	quoteLookups *prometheus.CounterVec

	// 上游 REST 指标
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec

	// 对外 HTTP 指标
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "bridge",
		Subsystem: "",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		streamState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_state",
			Help:      "行情流连接状态(0=disconnected,1=connecting,2=authenticating,3=subscribed,4=streaming,5=backoff)",
		}),
		streamTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_transitions_total",
			Help:      "行情流状态切换次数",
		}, []string{"to"}),
		streamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_messages_total",
			Help:      "已写入缓存的行情消息数",
		}, []string{"kind"}),
		streamDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_dropped_total",
			Help:      "被丢弃的行情消息数",
		}, []string{"reason"}),
		streamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_reconnects_total",
			Help:      "行情流重连次数",
		}),
		streamLastUpdate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_last_update_timestamp_seconds",
			Help:      "最近一次写入缓存的 unix 时间",
		}),

		quoteLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quote_lookups_total",
			Help:      "缓存查询次数（hit/miss/fallback）",
		}, []string{"result"}),

		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_requests_total",
			Help:      "上游REST请求总数",
		}, []string{"action"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_errors_total",
			Help:      "上游REST错误总数（网络错误或非2xx）",
		}, []string{"action"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "上游REST请求延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_total",
			Help:      "对外HTTP请求总数",
		}, []string{"route", "code"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "对外HTTP请求耗时（秒）",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),
	}

	return m
}

// 行情流相关方法
func (m *Monitor) UpdateStreamState(state int, name string) {
	if m == nil {
		return
	}
	m.streamState.Set(float64(state))
	m.streamTransitions.WithLabelValues(name).Inc()
}

func (m *Monitor) RecordStreamMessage(kind string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(kind).Inc()
}

func (m *Monitor) RecordStreamDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Monitor) RecordReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

func (m *Monitor) UpdateLastStreamUpdate(unixSeconds float64) {
	if m == nil {
		return
	}
	m.streamLastUpdate.Set(unixSeconds)
}

// 缓存相关方法
func (m *Monitor) RecordQuoteLookup(result string) {
	if m == nil {
		return
	}
	m.quoteLookups.WithLabelValues(result).Inc()
}

// REST相关方法
func (m *Monitor) RecordRESTRequest(action string) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	if m == nil {
		return
	}
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	if m == nil {
		return
	}
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// HTTP相关方法
func (m *Monitor) RecordHTTPRequest(route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
