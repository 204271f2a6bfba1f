// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthMetricsCollector は認証メトリクス収集のインターフェース。
// 認証サービス層から利用する。
type AuthMetricsCollector interface {
	RecordLogin(outcome string)
	RecordRegistration()
	RecordExternalExchange(outcome string, created bool)
	RecordTokenIssued(duration time.Duration)
	RecordRefresh(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	registrations    prometheus.Counter
	externalExchange *prometheus.CounterVec
	tokensIssued     prometheus.Counter
	issuanceDuration prometheus.Histogram
	refreshes        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgate_logins_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_registrations_total",
			Help: "セルフ登録成功の合計数",
		}),
		externalExchange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgate_external_exchanges_total",
			Help: "外部IDトークン交換の結果別合計数",
		}, []string{"outcome", "created"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventgate_tokens_issued_total",
			Help: "発行されたセッショントークンの合計数",
		}),
		issuanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventgate_token_issuance_duration_seconds",
			Help:    "セッショントークン発行（保存含む）の所要時間",
			Buckets: prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgate_refreshes_total",
			Help: "リフレッシュトークン使用の結果別合計数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.externalExchange,
		c.tokensIssued,
		c.issuanceDuration,
		c.refreshes,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration はセルフ登録成功を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordExternalExchange は外部IDトークン交換の結果を記録する。
// createdは交換によってローカルユーザーが新規作成されたかを示す。
func (c *Collector) RecordExternalExchange(outcome string, created bool) {
	c.externalExchange.WithLabelValues(outcome, strconv.FormatBool(created)).Inc()
}

// RecordTokenIssued はセッショントークン発行とその所要時間を記録する。
func (c *Collector) RecordTokenIssued(duration time.Duration) {
	c.tokensIssued.Inc()
	c.issuanceDuration.Observe(duration.Seconds())
}

// RecordRefresh はリフレッシュトークン使用の結果を記録する。
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
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
