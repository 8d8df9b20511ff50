// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AI呼び出しの結果ラベル。
const (
	OutcomeDone      = "done"
	OutcomeTransport = "transport"
	OutcomeMalformed = "malformed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordAIRequest(capability, outcome string)
	RecordAILatency(capability string, duration time.Duration)
	RecordStoreFailure(operation string)
	RecordSyncAttempt(success bool)
	RecordHTTPStatus(statusCode int)
	RecordAnswersEvaluated(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	aiRequests       *prometheus.CounterVec
	aiLatency        *prometheus.HistogramVec
	storeFailures    *prometheus.CounterVec
	syncAttempts     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	answersEvaluated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mockprep_ai_requests_total",
			Help: "AI呼び出しの結果別の合計数",
		}, []string{"capability", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mockprep_ai_latency_seconds",
			Help:    "AI呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"capability"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mockprep_store_failures_total",
			Help: "ストレージ操作失敗の合計数",
		}, []string{"operation"}),
		syncAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mockprep_user_sync_attempts_total",
			Help: "ユーザー同期の試行結果別の合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mockprep_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		answersEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mockprep_answers_evaluated_total",
			Help: "AI評価が完了した回答の合計数",
		}),
	}

	reg.MustRegister(
		c.aiRequests,
		c.aiLatency,
		c.storeFailures,
		c.syncAttempts,
		c.httpStatus,
		c.answersEvaluated,
	)

	return c
}

// RecordAIRequest はAI呼び出しの結果を記録する。
func (c *Collector) RecordAIRequest(capability, outcome string) {
	c.aiRequests.WithLabelValues(capability, outcome).Inc()
}

// RecordAILatency はAI呼び出しのレイテンシを記録する。
func (c *Collector) RecordAILatency(capability string, duration time.Duration) {
	c.aiLatency.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordStoreFailure はストレージ操作の失敗を記録する。
func (c *Collector) RecordStoreFailure(operation string) {
	c.storeFailures.WithLabelValues(operation).Inc()
}

// RecordSyncAttempt はユーザー同期の試行を記録する。
func (c *Collector) RecordSyncAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.syncAttempts.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAnswersEvaluated は評価が完了した回答数を記録する。
func (c *Collector) RecordAnswersEvaluated(count int) {
	c.answersEvaluated.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordAIRequest(string, string) {}
func (NopCollector) RecordAILatency(string, time.Duration) {}
func (NopCollector) RecordStoreFailure(string) {}
func (NopCollector) RecordSyncAttempt(bool) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordAnswersEvaluated(int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
