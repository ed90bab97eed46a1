// =============================================================================
// 📡 会话层遥测
// =============================================================================
// 为会话层提供 TracerProvider / MeterProvider：
// span（sessiondb.connect / sessiondb.probe / sessiondb.reconstruct）
// 与生命周期计数器都从这里的 Providers 取得。关闭遥测时退回全局 noop。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/config"
	"github.com/BaSui01/sessiondb/session"
)

// ScopeName 会话层 tracer / meter 的 instrumentation scope
const ScopeName = "github.com/BaSui01/sessiondb/session"

// Providers 会话层使用的 tracer、meter 及其关闭逻辑
type Providers struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	observer       *Observer
	shutdown       []func(context.Context) error
}

// Init 按配置初始化 OTLP 导出。cfg.Enabled 为 false 时不连接任何外部服务，
// 直接使用全局（默认 noop）provider。
func Init(cfg config.TelemetryConfig, driverName string, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using global providers")
		return NewProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg.ServiceName, driverName)
	if err != nil {
		return nil, err
	}

	spanExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: span exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = spanExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	p, err := NewProviders(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	p.shutdown = append(p.shutdown, tp.Shutdown, mp.Shutdown)

	// 第三方库（pgx 等）的 span 也走同一个 provider
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("db_system", DBSystem(driverName)),
	)
	return p, nil
}

// NewProviders 用给定的 provider 构造，测试中可传入内存 reader / recorder
func NewProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Providers, error) {
	obs, err := NewObserver(mp.Meter(ScopeName))
	if err != nil {
		return nil, err
	}
	return &Providers{tracerProvider: tp, meterProvider: mp, observer: obs}, nil
}

// Tracer 会话层 span 使用的 tracer
func (p *Providers) Tracer() trace.Tracer {
	if p == nil {
		return otel.Tracer(ScopeName)
	}
	return p.tracerProvider.Tracer(ScopeName)
}

// Observer 基于 meter 的会话生命周期计数器
func (p *Providers) Observer() *Observer {
	if p == nil {
		return nil
	}
	return p.observer
}

// SessionOptions 把 tracer 与计数器挂到会话上
func (p *Providers) SessionOptions() []session.Option {
	opts := []session.Option{session.WithTracer(p.Tracer())}
	if obs := p.Observer(); obs != nil {
		opts = append(opts, session.WithObserver(obs))
	}
	return opts
}

// Shutdown 刷出未导出的数据并关闭导出器，nil 或未启用时直接返回
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

func newResource(ctx context.Context, serviceName, driverName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(moduleVersion()),
			semconv.DBSystemKey.String(DBSystem(driverName)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	return res, nil
}

// moduleVersion 构建信息中的模块版本，本地构建为 "dev"
func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

// DBSystem 把 database/sql 驱动名映射为 OTel 的 db.system 取值
func DBSystem(driverName string) string {
	switch driverName {
	case "postgres", "pgx":
		return "postgresql"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "":
		return "other_sql"
	default:
		return driverName
	}
}
