package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func shutdownQuietly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		// 没有 collector 时导出会失败，只要求按时返回
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), &config.Config{}, "v1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultConfig()
	cfg.Telemetry = config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "afcflow-test",
		SampleRate:   0.5,
	}

	p, err := Init(context.Background(), cfg, "", nil)
	require.NoError(t, err)
	shutdownQuietly(t, p)

	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be the SDK provider")
	assert.True(t, mpIsSDK, "global MeterProvider should be the SDK provider")
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultConfig()
	cfg.Telemetry = config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "afcflow-shutdown-test",
		SampleRate:   1.0,
	}
	p, err := Init(context.Background(), cfg, "v0.0.1", zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的 Main.Version 为 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}

func TestInit_NilConfigFallsBackToDefaults(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), nil, "v1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.Enabled())
}

func TestResourceAttributes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telemetry.ServiceName = "afcflow-east"
	cfg.AFC.AllowedVersions = []string{"1.3"}
	cfg.Storage.Backend = "fs"
	cfg.Storage.HTTPIO = true
	cfg.Broker.Type = "redis"
	cfg.Database.Driver = "postgres"

	set := attribute.NewSet(resourceAttributes(cfg, "v2.1.0")...)

	get := func(key string) attribute.Value {
		v, ok := set.Value(attribute.Key(key))
		require.True(t, ok, "missing attribute %s", key)
		return v
	}
	assert.Equal(t, "afcflow-east", get("service.name").AsString())
	assert.Equal(t, "v2.1.0", get("service.version").AsString())
	assert.Equal(t, "AP-AFC", get("afc.request_type").AsString())
	assert.Equal(t, []string{"1.3"}, get("afc.allowed_versions").AsStringSlice())
	assert.Equal(t, "fs", get("afc.storage.backend").AsString())
	assert.True(t, get("afc.storage.http_io").AsBool())
	assert.Equal(t, "redis", get("afc.broker.type").AsString())
	assert.Equal(t, "postgres", get("afc.registry.driver").AsString())
}

func collectHistogram(t *testing.T, scope, name string, value float64) metricdata.Histogram[float64] {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(waitDurationView()),
	)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	hist, err := mp.Meter(scope).Float64Histogram(name)
	require.NoError(t, err)
	hist.Record(context.Background(), value)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	data, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	return data
}

func TestWaitDurationView_LongTailBuckets(t *testing.T) {
	data := collectHistogram(t, afc.InstrumentationName, afc.WaitDurationMetric, 900)

	dp := data.DataPoints[0]
	assert.Equal(t, waitBuckets, dp.Bounds)
	// 900s 落在 (600, 1200] 桶
	idx := len(waitBuckets) - 2
	assert.Equal(t, uint64(1), dp.BucketCounts[idx])
}

func TestWaitDurationView_OtherScopesKeepDefaults(t *testing.T) {
	data := collectHistogram(t, HTTPInstrumentationName, afc.WaitDurationMetric, 900)
	assert.NotEqual(t, waitBuckets, data.DataPoints[0].Bounds)
}
