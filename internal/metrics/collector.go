// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/session"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 会话层指标收集器，实现 session.Observer
type Collector struct {
	// 连接生命周期
	connectsTotal      *prometheus.CounterVec
	connectDuration    prometheus.Histogram
	disconnectsTotal   prometheus.Counter
	releasedStatements prometheus.Counter

	// 存活检查
	probesTotal    *prometheus.CounterVec
	lastProbeAlive prometheus.Gauge

	// 语句重建
	reconstructionsTotal *prometheus.CounterVec
	deferredColumns      *prometheus.CounterVec

	// 连接池
	poolConnections *prometheus.GaugeVec
	poolWaitTotal   prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 在 reg 上注册指标；reg 为 nil 时使用默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.connectsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Total number of connection attempts",
		},
		[]string{"result"},
	)

	c.connectDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time spent establishing a connection, including attribute replay",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	c.disconnectsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total number of disconnects that released a live handle",
		},
	)

	c.releasedStatements = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_statements_total",
			Help:      "Statement handles released by disconnects",
		},
	)

	c.probesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_checks_total",
			Help:      "Liveness checks by result and whether they were served from cache",
		},
		[]string{"result", "source"},
	)

	c.lastProbeAlive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_liveness_alive",
			Help:      "1 if the most recent liveness check succeeded, 0 otherwise",
		},
	)

	c.reconstructionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_reconstructions_total",
			Help:      "Statement reconstructions after reconnect",
		},
		[]string{"kind", "result"},
	)

	c.deferredColumns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_column_bindings_total",
			Help:      "Column bindings deferred during replay and later resolved",
		},
		[]string{"outcome"},
	)

	c.poolConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_connections",
			Help:      "Sessions held by a session-backed pool",
		},
		[]string{"pool", "state"},
	)

	c.poolWaitTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_wait_count",
			Help:      "Total number of connections waited for",
		},
	)

	return c
}

// =============================================================================
// 📝 session.Observer
// =============================================================================

// ObserveConnect 记录一次连接尝试
func (c *Collector) ObserveConnect(d time.Duration, err error) {
	c.connectsTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.connectDuration.Observe(d.Seconds())
	}
}

// ObserveDisconnect 记录一次断开及随之释放的语句句柄数
func (c *Collector) ObserveDisconnect(released int) {
	c.disconnectsTotal.Inc()
	c.releasedStatements.Add(float64(released))
}

// ObserveProbe 记录一次存活检查
func (c *Collector) ObserveProbe(alive, cached bool) {
	source := "probe"
	if cached {
		source = "cache"
	}
	res := "dead"
	v := 0.0
	if alive {
		res = "alive"
		v = 1
	}
	c.probesTotal.WithLabelValues(res, source).Inc()
	c.lastProbeAlive.Set(v)
}

// ObserveReconstruct 记录一次语句重建
func (c *Collector) ObserveReconstruct(prepared bool, err error) {
	kind := "query"
	if prepared {
		kind = "prepared"
	}
	c.reconstructionsTotal.WithLabelValues(kind, result(err)).Inc()
	if err != nil {
		c.logger.Debug("statement reconstruction failed", zap.String("kind", kind), zap.Error(err))
	}
}

// ObserveDeferredColumn 记录列绑定被推迟或在执行后补绑
func (c *Collector) ObserveDeferredColumn(resolved bool) {
	outcome := "deferred"
	if resolved {
		outcome = "resolved"
	}
	c.deferredColumns.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// RecordPoolStats 记录 database/sql 连接池统计
func (c *Collector) RecordPoolStats(pool string, stats sql.DBStats) {
	c.poolConnections.WithLabelValues(pool, "open").Set(float64(stats.OpenConnections))
	c.poolConnections.WithLabelValues(pool, "in_use").Set(float64(stats.InUse))
	c.poolConnections.WithLabelValues(pool, "idle").Set(float64(stats.Idle))
	c.poolWaitTotal.Set(float64(stats.WaitCount))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ session.Observer = (*Collector)(nil)
