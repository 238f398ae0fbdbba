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
// 認証ハンドラー、Filter Data Cache、アプリケーションコンテキスト、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(state, mode string)
	RecordSessionInit(result string)
	RecordFilterFetch(success bool, duration time.Duration)
	RecordFilterCoalesced()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcome    *prometheus.CounterVec
	sessionInit    *prometheus.CounterVec
	filterFetch    *prometheus.CounterVec
	filterLatency  prometheus.Histogram
	filterCoalesce prometheus.Counter
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadeguide_steam_auth_total",
			Help: "Steamコールバック処理の終了状態別の合計数",
		}, []string{"state", "mode"}),
		sessionInit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadeguide_session_init_total",
			Help: "セッション初期化の結果別の合計数",
		}, []string{"result"}),
		filterFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadeguide_filter_fetch_total",
			Help: "フィルタ参照データ取得バッチの結果別の合計数",
		}, []string{"result"}),
		filterLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nadeguide_filter_fetch_latency_seconds",
			Help:    "フィルタ参照データ取得バッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		filterCoalesce: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nadeguide_filter_load_coalesced_total",
			Help: "進行中の取得バッチに合流したLoad呼び出しの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nadeguide_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.sessionInit,
		c.filterFetch,
		c.filterLatency,
		c.filterCoalesce,
		c.httpStatus,
	)

	return c
}

// RecordAuthOutcome はSteamコールバックの終了状態を記録する。
func (c *Collector) RecordAuthOutcome(state, mode string) {
	c.authOutcome.WithLabelValues(state, mode).Inc()
}

// RecordSessionInit はセッション初期化の結果を記録する。
func (c *Collector) RecordSessionInit(result string) {
	c.sessionInit.WithLabelValues(result).Inc()
}

// RecordFilterFetch は取得バッチの結果とレイテンシを記録する。
func (c *Collector) RecordFilterFetch(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.filterFetch.WithLabelValues(result).Inc()
	c.filterLatency.Observe(duration.Seconds())
}

// RecordFilterCoalesced は進行中バッチへの合流を記録する。
func (c *Collector) RecordFilterCoalesced() {
	c.filterCoalesce.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使用する。
type Nop struct{}

func (Nop) RecordAuthOutcome(string, string)      {}
func (Nop) RecordSessionInit(string)              {}
func (Nop) RecordFilterFetch(bool, time.Duration) {}
func (Nop) RecordFilterCoalesced()                {}
func (Nop) RecordHTTPStatus(int)                  {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
