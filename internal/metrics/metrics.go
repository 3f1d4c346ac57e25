// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、バッチジョブ、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordWeeklyProgress(result string)
	RecordBackfillWeek(status string)
	RecordBackfillDuration(duration time.Duration)
	RecordSignIn(result string)
	RecordHTTPStatus(statusCode int)
	RecordCleanup(kind string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	weeklyProgress   *prometheus.CounterVec
	backfillWeeks    *prometheus.CounterVec
	backfillDuration prometheus.Histogram
	signIns          *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	cleanupDeleted   *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		weeklyProgress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moai_weekly_progress_total",
			Help: "週次進捗の集計結果別の件数",
		}, []string{"result"}),
		backfillWeeks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moai_backfill_weeks_total",
			Help: "バッジバックフィルで判定した週の判定結果別の件数",
		}, []string{"status"}),
		backfillDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moai_backfill_duration_seconds",
			Help:    "バッジバックフィル1回の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moai_signin_total",
			Help: "サインイン結果別の件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moai_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moai_cleanup_deleted_total",
			Help: "クリーンアップで削除した行数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.weeklyProgress,
		c.backfillWeeks,
		c.backfillDuration,
		c.signIns,
		c.httpStatus,
		c.cleanupDeleted,
	)

	return c
}

// RecordWeeklyProgress は週次進捗の集計結果を記録する。
func (c *Collector) RecordWeeklyProgress(result string) {
	c.weeklyProgress.WithLabelValues(result).Inc()
}

// RecordBackfillWeek はバックフィルの週判定結果を記録する。
func (c *Collector) RecordBackfillWeek(status string) {
	c.backfillWeeks.WithLabelValues(status).Inc()
}

// RecordBackfillDuration はバックフィルの所要時間を記録する。
func (c *Collector) RecordBackfillDuration(duration time.Duration) {
	c.backfillDuration.Observe(duration.Seconds())
}

// RecordSignIn はサインイン結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIns.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanup はクリーンアップの削除件数を記録する。
func (c *Collector) RecordCleanup(kind string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(deleted))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
