// Package metrics はPrometheusメトリクスの収集と公開を提供する。
//
// サービスごとに独立したレジストリを持ち、/metrics で公開する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はエンジンとHTTP層のメトリクスを保持する。
// nilのCollectorに対する記録呼び出しは何もしない。
type Collector struct {
	registry *prometheus.Registry

	notificationsCreated      *prometheus.CounterVec
	notificationsFailed       *prometheus.CounterVec
	notificationsDeduplicated *prometheus.CounterVec
	stateMutations            *prometheus.CounterVec
	fanOutRecipients          *prometheus.CounterVec
	refreshEvents             *prometheus.CounterVec
	requestTotal              *prometheus.CounterVec
	requestDuration           *prometheus.HistogramVec
}

// New は指定した名前空間でCollectorを生成する。
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		notificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "作成された通知の数。",
		}, []string{"template"}),
		notificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "failed_total",
			Help:      "作成に失敗した通知の数。",
		}, []string{"reason"}),
		notificationsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deduplicated_total",
			Help:      "重複として作成がスキップされた通知の数。",
		}, []string{"template"}),
		stateMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "state_mutations_total",
			Help:      "既読・アーカイブ操作の数。",
		}, []string{"operation", "result"}),
		fanOutRecipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "fanout_recipients_total",
			Help:      "グループへの一斉通知で処理した受信者の数。",
		}, []string{"result"}),
		refreshEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "events_total",
			Help:      "リフレッシュバスに発行されたイベントの数。",
		}, []string{"type"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "受信したHTTPリクエストの数。",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTPリクエストのレイテンシ分布。",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		c.notificationsCreated,
		c.notificationsFailed,
		c.notificationsDeduplicated,
		c.stateMutations,
		c.fanOutRecipients,
		c.refreshEvents,
		c.requestTotal,
		c.requestDuration,
	)
	return c
}

// Registry は内部のPrometheusレジストリを返す。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler はメトリクス公開用のHTTPハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware はリクエスト数とレイテンシを記録するGinミドルウェアを返す。
// パスはルート定義（例: /api/v1/notifications/:id/read）で集計する。
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.requestTotal.WithLabelValues(ctx.Request.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(ctx.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// NotificationCreated は通知作成の成功を記録する。
func (c *Collector) NotificationCreated(templateID string) {
	if c == nil {
		return
	}
	c.notificationsCreated.WithLabelValues(templateID).Inc()
}

// NotificationFailed は通知作成の失敗を記録する。reasonは "template" または "store"。
func (c *Collector) NotificationFailed(reason string) {
	if c == nil {
		return
	}
	c.notificationsFailed.WithLabelValues(reason).Inc()
}

// NotificationDeduplicated は重複によりスキップされた通知を記録する。
func (c *Collector) NotificationDeduplicated(templateID string) {
	if c == nil {
		return
	}
	c.notificationsDeduplicated.WithLabelValues(templateID).Inc()
}

// StateMutation は既読・アーカイブ操作の結果を記録する。
func (c *Collector) StateMutation(operation string, ok bool) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.stateMutations.WithLabelValues(operation, result).Inc()
}

// RefreshEvent はリフレッシュバスへのイベント発行を記録する。
func (c *Collector) RefreshEvent(eventType string) {
	if c == nil {
		return
	}
	c.refreshEvents.WithLabelValues(eventType).Inc()
}

// FanOut はグループへの一斉通知の結果を記録する。
func (c *Collector) FanOut(created, failed int) {
	if c == nil {
		return
	}
	c.fanOutRecipients.WithLabelValues("created").Add(float64(created))
	c.fanOutRecipients.WithLabelValues("failed").Add(float64(failed))
}

// CounterValue は完全なメトリクス名とラベルに一致するカウンタの現在値を返す。
// 見つからない場合は0を返す。
func (c *Collector) CounterValue(name string, labels map[string]string) float64 {
	if c == nil {
		return 0
	}
	families, err := c.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, m := range mf.GetMetric() {
			pairs := m.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			for _, lp := range pairs {
				if v, ok := labels[lp.GetName()]; !ok || v != lp.GetValue() {
					continue metricLoop
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
