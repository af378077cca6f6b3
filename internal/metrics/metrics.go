// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// アクセスフローの結果。ラベル値として使う。
const (
	OutcomeRendered     = "rendered"
	OutcomeUnavailable  = "unavailable"
	OutcomeNotFound     = "not_found"
	OutcomeRedirected   = "redirected"
	OutcomeInvalidEmail = "invalid_email"
	OutcomeWrongEmail   = "wrong_email"
	OutcomeAuthorized   = "authorized"
	OutcomeRateLimited  = "rate_limited"
	OutcomeTimeout      = "timeout"
	OutcomeFailed       = "failed"
	OutcomeCanceled     = "canceled"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーや上流クライアントから利用する。
type MetricsCollector interface {
	RecordUpstreamCall(op string, statusCode int, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordAccessOutcome(route, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	accessOutcomes  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docdownload_upstream_requests_total",
			Help: "上流API呼び出しの合計数（status_code=0はトランスポートエラー）",
		}, []string{"op", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docdownload_upstream_latency_seconds",
			Help:    "上流API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docdownload_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		accessOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docdownload_access_outcomes_total",
			Help: "ルートごとのアクセスフローの結果",
		}, []string{"route", "outcome"}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamLatency,
		c.httpStatus,
		c.accessOutcomes,
	)

	return c
}

// RecordUpstreamCall は上流API呼び出しを記録する。
func (c *Collector) RecordUpstreamCall(op string, statusCode int, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAccessOutcome はアクセスフローの結果を記録する。
func (c *Collector) RecordAccessOutcome(route, outcome string) {
	c.accessOutcomes.WithLabelValues(route, outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordUpstreamCall(string, int, time.Duration) {}
func (NopCollector) RecordHTTPStatus(int)                          {}
func (NopCollector) RecordAccessOutcome(string, string)            {}
