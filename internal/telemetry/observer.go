package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/sessiondb/session"
)

// 计数器名称
const (
	MetricConnects       = "sessiondb.connects"
	MetricConnectTime    = "sessiondb.connect.duration"
	MetricDisconnects    = "sessiondb.disconnects"
	MetricReleasedStmts  = "sessiondb.statements.released"
	MetricLivenessChecks = "sessiondb.liveness.checks"
	MetricReconstructs   = "sessiondb.reconstructs"
	MetricDeferredColumn = "sessiondb.deferred_columns"
)

// 属性键
const (
	attrOutcome  = "outcome"
	attrAlive    = "alive"
	attrCached   = "cached"
	attrPrepared = "prepared"
	attrResolved = "resolved"
)

// Observer 以 OTel 计数器记录会话生命周期，实现 session.Observer
type Observer struct {
	connects       metric.Int64Counter
	connectTime    metric.Float64Histogram
	disconnects    metric.Int64Counter
	released       metric.Int64Counter
	livenessChecks metric.Int64Counter
	reconstructs   metric.Int64Counter
	deferredColumn metric.Int64Counter
}

// NewObserver 在 meter 上注册全部计数器
func NewObserver(m metric.Meter) (*Observer, error) {
	var (
		o   Observer
		err error
	)
	if o.connects, err = m.Int64Counter(MetricConnects,
		metric.WithDescription("Physical connection attempts by outcome."),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if o.connectTime, err = m.Float64Histogram(MetricConnectTime,
		metric.WithDescription("Time spent opening a physical connection."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.disconnects, err = m.Int64Counter(MetricDisconnects,
		metric.WithUnit("{disconnect}")); err != nil {
		return nil, err
	}
	if o.released, err = m.Int64Counter(MetricReleasedStmts,
		metric.WithDescription("Driver statements released on disconnect."),
		metric.WithUnit("{statement}")); err != nil {
		return nil, err
	}
	if o.livenessChecks, err = m.Int64Counter(MetricLivenessChecks,
		metric.WithDescription("Liveness checks by result and whether the cache answered."),
		metric.WithUnit("{check}")); err != nil {
		return nil, err
	}
	if o.reconstructs, err = m.Int64Counter(MetricReconstructs,
		metric.WithDescription("Statement reconstructions after reconnect."),
		metric.WithUnit("{statement}")); err != nil {
		return nil, err
	}
	if o.deferredColumn, err = m.Int64Counter(MetricDeferredColumn,
		metric.WithUnit("{binding}")); err != nil {
		return nil, err
	}
	return &o, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String(attrOutcome, "error")
	}
	return attribute.String(attrOutcome, "ok")
}

// ObserveConnect 记录一次建立连接
func (o *Observer) ObserveConnect(d time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(outcome(err))
	o.connects.Add(ctx, 1, attrs)
	o.connectTime.Record(ctx, d.Seconds(), attrs)
}

// ObserveDisconnect 记录一次断开及释放的语句数
func (o *Observer) ObserveDisconnect(released int) {
	ctx := context.Background()
	o.disconnects.Add(ctx, 1)
	if released > 0 {
		o.released.Add(ctx, int64(released))
	}
}

// ObserveProbe 记录一次存活检查
func (o *Observer) ObserveProbe(alive, cached bool) {
	o.livenessChecks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool(attrAlive, alive),
		attribute.Bool(attrCached, cached),
	))
}

// ObserveReconstruct 记录一次语句重建
func (o *Observer) ObserveReconstruct(prepared bool, err error) {
	o.reconstructs.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool(attrPrepared, prepared),
		outcome(err),
	))
}

// ObserveDeferredColumn 记录一次延迟列绑定的解析
func (o *Observer) ObserveDeferredColumn(resolved bool) {
	o.deferredColumn.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool(attrResolved, resolved)))
}

var _ session.Observer = (*Observer)(nil)
