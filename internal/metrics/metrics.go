// Package metrics 在独立的 prometheus 注册表上汇总缓存与检测指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "menucache"

// Metrics 聚合全部指标，nil 接收者上的记录方法都是空操作。
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups       *prometheus.CounterVec
	cacheStores        *prometheus.CounterVec
	bucketsInvalidated *prometheus.CounterVec
	installs           *prometheus.CounterVec
	sweepRuns          *prometheus.CounterVec
	sweepChanges       prometheus.Counter
	detections         *prometheus.CounterVec
	signatureMismatch  prometheus.Counter
}

// New 构造指标集合并注册 Go 运行时采集器。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Offline cache lookups by bucket and result.",
		}, []string{"bucket", "result"}),
		cacheStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stores_total",
			Help:      "Responses written into the offline cache.",
		}, []string{"bucket"}),
		bucketsInvalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_deleted_total",
			Help:      "Buckets deleted by invalidation or version garbage collection.",
		}, []string{"cause"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Controller install attempts.",
		}, []string{"result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Background sweep runs by outcome.",
		}, []string{"outcome"}),
		sweepChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_changed_assets_total",
			Help:      "Assets found changed by background sweeps.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Page-count detections by menu type.",
		}, []string{"menu_type"}),
		signatureMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_mismatches_total",
			Help:      "Composite signature mismatches seen by page visits.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.cacheLookups,
		m.cacheStores,
		m.bucketsInvalidated,
		m.installs,
		m.sweepRuns,
		m.sweepChanges,
		m.detections,
		m.signatureMismatch,
	)
	return m
}

// Registry 暴露底层注册表，供额外的 GaugeFunc 使用。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /-/metrics 使用的 http.Handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ProbeCounter 以 GaugeFunc 的形式导出累计探测次数。
func (m *Metrics) ProbeCounter(count func() int64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_total",
		Help:      "HEAD probes issued against the origin.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) CacheLookup(bucket string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(bucket, result).Inc()
}

func (m *Metrics) CacheStore(bucket string) {
	if m == nil {
		return
	}
	m.cacheStores.WithLabelValues(bucket).Inc()
}

// BucketDeleted 记录一次 bucket 删除，cause 为 invalidate 或 activate。
func (m *Metrics) BucketDeleted(cause string) {
	if m == nil {
		return
	}
	m.bucketsInvalidated.WithLabelValues(cause).Inc()
}

func (m *Metrics) Install(ok bool) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(outcome(ok)).Inc()
}

// SweepRun 记录一次巡检及发现的变更数。
func (m *Metrics) SweepRun(ok bool, changed int) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome(ok)).Inc()
	m.sweepChanges.Add(float64(changed))
}

func (m *Metrics) Detection(menuType string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(menuType).Inc()
}

func (m *Metrics) SignatureMismatch() {
	if m == nil {
		return
	}
	m.signatureMismatch.Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
