// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/staysync/internal/model"
)

// Collector は同期パイプラインのPrometheusメトリクスを収集する。
// sync.MetricsRecorderインターフェースを実装する。
type Collector struct {
	syncSuccess      prometheus.Counter
	syncFail         *prometheus.CounterVec
	syncDuration     prometheus.Histogram
	bookingsCreated  prometheus.Counter
	bookingsUpdated  prometheus.Counter
	bookingsDeleted  prometheus.Counter
	bookingsVanished prometheus.Counter
	batchRuns        prometheus.Counter
	batchDuration    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_source_sync_success_total",
			Help: "ソース同期成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staysync_source_sync_fail_total",
			Help: "ソース同期失敗の段階別合計数",
		}, []string{"stage"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staysync_source_sync_duration_seconds",
			Help:    "ソース同期の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_bookings_created_total",
			Help: "同期で新規作成された予約の合計数",
		}),
		bookingsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_bookings_updated_total",
			Help: "同期で上書き更新された予約の合計数",
		}),
		bookingsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_bookings_soft_deleted_total",
			Help: "消失閾値の到達によりソフトデリートされた予約の合計数",
		}),
		bookingsVanished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_bookings_vanished_total",
			Help: "フィードからの消失が記録された予約の合計数",
		}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staysync_batch_runs_total",
			Help: "バッチ同期の実行回数",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staysync_batch_duration_seconds",
			Help:    "バッチ同期の所要時間（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncDuration,
		c.bookingsCreated,
		c.bookingsUpdated,
		c.bookingsDeleted,
		c.bookingsVanished,
		c.batchRuns,
		c.batchDuration,
	)

	return c
}

// RecordSyncSuccess はソース同期の成功を記録する。
func (c *Collector) RecordSyncSuccess(sourceID string) {
	c.syncSuccess.Inc()
}

// RecordSyncFailure はソース同期の失敗を失敗段階とともに記録する。
func (c *Collector) RecordSyncFailure(sourceID string, stage string) {
	c.syncFail.WithLabelValues(stage).Inc()
}

// RecordSyncDuration はソース同期の所要時間を記録する。
func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
}

// RecordBookingChanges は同期で適用された予約変更の件数を記録する。
func (c *Collector) RecordBookingChanges(created, updated, deleted, vanished int) {
	c.bookingsCreated.Add(float64(created))
	c.bookingsUpdated.Add(float64(updated))
	c.bookingsDeleted.Add(float64(deleted))
	c.bookingsVanished.Add(float64(vanished))
}

// RecordBatchRun はバッチ同期の完了を記録する。
func (c *Collector) RecordBatchRun(result *model.BatchResult) {
	c.batchRuns.Inc()
	c.batchDuration.Observe(result.Duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
