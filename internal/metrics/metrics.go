// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// クロールワーカーと購読・同期のワークフローから利用する。
type Collector struct {
	crawlSuccess   prometheus.Counter
	crawlFail      prometheus.Counter
	crawlLatency   prometheus.Histogram
	itemsAdded     prometheus.Counter
	subscribes     prometheus.Counter
	unsubscribes   prometheus.Counter
	syncRequests   prometheus.Counter
	dirtyChannels  prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		crawlSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_crawl_success_total",
			Help: "チャンネルクロール成功の合計数",
		}),
		crawlFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_crawl_fail_total",
			Help: "チャンネルクロール失敗の合計数",
		}),
		crawlLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedsync_crawl_latency_seconds",
			Help:    "チャンネルクロールのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_items_added_total",
			Help: "新規保存された記事の合計数",
		}),
		subscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_subscribe_total",
			Help: "購読作成の合計数",
		}),
		unsubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_unsubscribe_total",
			Help: "購読解除の合計数",
		}),
		syncRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_sync_requests_total",
			Help: "差分同期リクエストの合計数",
		}),
		dirtyChannels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedsync_sync_dirty_channels_total",
			Help: "差分同期で返却されたチャンネルの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.crawlSuccess,
		c.crawlFail,
		c.crawlLatency,
		c.itemsAdded,
		c.subscribes,
		c.unsubscribes,
		c.syncRequests,
		c.dirtyChannels,
		c.httpStatus,
	)

	return c
}

// RecordCrawlSuccess はクロール成功を記録する。
func (c *Collector) RecordCrawlSuccess() {
	c.crawlSuccess.Inc()
}

// RecordCrawlFailure はクロール失敗を記録する。
func (c *Collector) RecordCrawlFailure() {
	c.crawlFail.Inc()
}

// RecordCrawlLatency はクロールのレイテンシを記録する。
func (c *Collector) RecordCrawlLatency(duration time.Duration) {
	c.crawlLatency.Observe(duration.Seconds())
}

// RecordItemsAdded は新規保存された記事数を記録する。
func (c *Collector) RecordItemsAdded(count int) {
	c.itemsAdded.Add(float64(count))
}

// RecordSubscribe は購読作成を記録する。
func (c *Collector) RecordSubscribe() {
	c.subscribes.Inc()
}

// RecordUnsubscribe は購読解除を記録する。
func (c *Collector) RecordUnsubscribe() {
	c.unsubscribes.Inc()
}

// RecordSyncRequest は差分同期リクエストと返却チャンネル数を記録する。
func (c *Collector) RecordSyncRequest(dirtyChannels int) {
	c.syncRequests.Inc()
	c.dirtyChannels.Add(float64(dirtyChannels))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
