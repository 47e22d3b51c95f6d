package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 管线指标
	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	filterEvents  *prometheus.CounterVec

	// 检索指标
	retrievalDuration *prometheus.HistogramVec
	retrievalResults  *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 银行存储指标
	storesTotal    *prometheus.CounterVec
	duplicateSkips *prometheus.CounterVec
	rotationsTotal *prometheus.CounterVec
	repairsTotal   *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 管线指标
	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"verdict", "mode"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage"},
	)

	c.filterEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_filter_events_total",
			Help:      "Total number of safety and ethics filter events",
		},
		[]string{"filter", "action"},
	)

	// 检索指标
	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Bank retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"bank"},
	)

	c.retrievalResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of records returned per bank scan",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"bank"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 银行存储指标
	c.storesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_stores_total",
			Help:      "Total number of records stored",
		},
		[]string{"bank", "tier"},
	)

	c.duplicateSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_duplicate_skips_total",
			Help:      "Total number of stores skipped as duplicates",
		},
		[]string{"bank"},
	)

	c.rotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_rotations_total",
			Help:      "Total number of tier rotations",
		},
		[]string{"bank", "tier"},
	)

	c.repairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_repairs_total",
			Help:      "Total number of health-check overflow repairs",
		},
		[]string{"bank"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🧮 管线指标记录
// =============================================================================

// RecordRun 记录一次管线运行
func (c *Collector) RecordRun(verdict, mode string) {
	c.runsTotal.WithLabelValues(verdict, mode).Inc()
}

// RecordStage 记录阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFilterEvent 记录安全或伦理过滤事件
func (c *Collector) RecordFilterEvent(filter, action string) {
	c.filterEvents.WithLabelValues(filter, action).Inc()
}

// =============================================================================
// 🔍 检索指标记录
// =============================================================================

// RecordRetrieval 记录一次银行扫描
func (c *Collector) RecordRetrieval(bank string, duration time.Duration, results int) {
	c.retrievalDuration.WithLabelValues(bank).Observe(duration.Seconds())
	c.retrievalResults.WithLabelValues(bank).Observe(float64(results))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStore 记录一次写入
func (c *Collector) RecordStore(bank, tier string) {
	c.storesTotal.WithLabelValues(bank, tier).Inc()
}

// RecordDuplicateSkip 记录一次去重跳过
func (c *Collector) RecordDuplicateSkip(bank string) {
	c.duplicateSkips.WithLabelValues(bank).Inc()
}

// RecordRotation 记录一次层级轮转
func (c *Collector) RecordRotation(bank, tier string) {
	c.rotationsTotal.WithLabelValues(bank, tier).Inc()
}

// RecordRepair 记录一次健康检查修复
func (c *Collector) RecordRepair(bank string) {
	c.repairsTotal.WithLabelValues(bank).Inc()
}
