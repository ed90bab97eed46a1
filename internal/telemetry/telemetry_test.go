package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/sessiondb/config"
	"github.com/BaSui01/sessiondb/session"
	"github.com/BaSui01/sessiondb/testutil/mocks"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

// 内存中的 provider：span 进 recorder，计数器进 ManualReader
func newTestProviders(t *testing.T) (*Providers, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	p, err := NewProviders(tp, mp)
	require.NoError(t, err)
	return p, recorder, reader
}

// sumOf 汇总名为 name 的 Int64 计数器中属性包含 match 的数据点
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		got, ok := set.Value(kv.Key)
		if !ok || got.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

func TestInit_DisabledFallsBackToGlobals(t *testing.T) {
	keepGlobals(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, "postgres", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Same(t, otel.GetTracerProvider(), p.tracerProvider)
	assert.Empty(t, p.shutdown)
	assert.NotNil(t, p.Observer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledInstallsSDK(t *testing.T) {
	keepGlobals(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "sessiondb-test",
		SampleRate:   0.5,
	}, "pgx", zaptest.NewLogger(t))
	require.NoError(t, err)

	_, isSDKTracer := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, isSDKMeter := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, isSDKTracer)
	assert.True(t, isSDKMeter)
	assert.Len(t, p.shutdown, 2)

	// 没有 collector 时导出可能失败，只要求按时返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
	assert.Empty(t, p.shutdown)
}

func TestProviders_NilReceiver(t *testing.T) {
	var p *Providers
	assert.NotNil(t, p.Tracer())
	assert.Nil(t, p.Observer())
	assert.Len(t, p.SessionOptions(), 1)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestModuleVersion(t *testing.T) {
	// 测试二进制的主模块版本是 (devel)
	assert.Equal(t, "dev", moduleVersion())
}

func TestDBSystem(t *testing.T) {
	for in, want := range map[string]string{
		"pgx":      "postgresql",
		"postgres": "postgresql",
		"mysql":    "mysql",
		"sqlite3":  "sqlite",
		"sqlite":   "sqlite",
		"oracle":   "oracle",
		"":         "other_sql",
	} {
		assert.Equal(t, want, DBSystem(in), in)
	}
}

// 会话的 span 与计数器都经由 Providers 产生，不依赖全局 provider
func TestProviders_SessionTelemetry(t *testing.T) {
	keepGlobals(t)
	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	p, recorder, reader := newTestProviders(t)
	ctx := context.Background()

	conn, err := session.New(ctx, mocks.NewMockDriver(), session.Config{DSN: "mock://otel"},
		append(p.SessionOptions(), session.WithLogger(zap.NewNop()))...)
	require.NoError(t, err)
	defer conn.Close()

	st, err := conn.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, conn.Reconnect(ctx))
	require.NoError(t, st.Execute(ctx))

	_, err = conn.IsAlive(ctx, 0)
	require.NoError(t, err)
	_, err = conn.IsAlive(ctx, time.Minute)
	require.NoError(t, err)

	spans := make(map[string]int)
	for _, s := range recorder.Ended() {
		spans[s.Name()]++
		assert.Equal(t, ScopeName, s.InstrumentationScope().Name)
	}
	assert.Equal(t, 2, spans["sessiondb.connect"])
	assert.Equal(t, 1, spans["sessiondb.reconstruct"])
	assert.Equal(t, 1, spans["sessiondb.probe"])

	assert.EqualValues(t, 2, sumOf(t, reader, MetricConnects, attribute.String(attrOutcome, "ok")))
	assert.EqualValues(t, 1, sumOf(t, reader, MetricDisconnects))
	assert.EqualValues(t, 1, sumOf(t, reader, MetricReleasedStmts))
	assert.EqualValues(t, 1, sumOf(t, reader, MetricReconstructs,
		attribute.Bool(attrPrepared, true), attribute.String(attrOutcome, "ok")))
	assert.EqualValues(t, 1, sumOf(t, reader, MetricLivenessChecks, attribute.Bool(attrCached, false)))
	assert.EqualValues(t, 1, sumOf(t, reader, MetricLivenessChecks, attribute.Bool(attrCached, true)))
}

func TestObserver_ConnectFailure(t *testing.T) {
	p, _, reader := newTestProviders(t)
	ctx := context.Background()

	_, err := session.New(ctx, mocks.NewMockDriver().WithOpenError(assert.AnError),
		session.Config{DSN: "mock://down"}, p.SessionOptions()...)
	require.Error(t, err)

	assert.EqualValues(t, 1, sumOf(t, reader, MetricConnects, attribute.String(attrOutcome, "error")))
	assert.EqualValues(t, 0, sumOf(t, reader, MetricConnects, attribute.String(attrOutcome, "ok")))
}
