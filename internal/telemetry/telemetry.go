// =============================================================================
// 📡 afcflow OpenTelemetry 初始化
// =============================================================================
// afc.Service 的查询 span 与 tracker 的等待直方图通过全局 provider 导出。
// resource 记录部署形态（请求类型、存储与代理后端），等待直方图使用
// 长尾桶边界。禁用时不创建 exporter，全局 provider 保持 noop。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// HTTPInstrumentationName 是 HTTP 中间件 tracer 的 instrumentation scope
const HTTPInstrumentationName = "github.com/BaSui01/afcflow/cmd/afcflow"

// waitBuckets 覆盖引擎从亚秒到半小时的计算耗时（秒）。SDK 默认桶按毫秒设计
var waitBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200, 1800}

// Providers holds the SDK providers. Both are nil when telemetry is disabled.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Enabled 是否创建了真实 provider
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Init initializes the OTel SDK and registers global providers. version is
// reported as service.version; an empty value falls back to build info.
// The resource carries the coordinator's deployment shape: request type,
// versions, storage and broker backends.
func Init(ctx context.Context, full *config.Config, version string, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if full == nil {
		full = config.DefaultConfig()
	}
	cfg := full.Telemetry
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	if version == "" {
		version = buildVersion()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(resourceAttributes(full, version)...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// 父 span 的采样决定优先，本地根 span 按比例采样
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(waitDurationView()),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_version", version),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("storage_backend", full.Storage.Backend),
		zap.String("broker_type", full.Broker.Type),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

func resourceAttributes(cfg *config.Config, version string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.Telemetry.ServiceName),
		semconv.ServiceVersionKey.String(version),
		attribute.String("afc.request_type", cfg.AFC.RequestType),
		attribute.StringSlice("afc.allowed_versions", cfg.AFC.AllowedVersions),
		attribute.String("afc.storage.backend", cfg.Storage.Backend),
		attribute.Bool("afc.storage.http_io", cfg.Storage.HTTPIO),
		attribute.String("afc.broker.type", cfg.Broker.Type),
		attribute.String("afc.registry.driver", cfg.Database.Driver),
	}
}

// waitDurationView 只作用于 afc 包的等待直方图
func waitDurationView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{
			Name:  afc.WaitDurationMetric,
			Scope: instrumentation.Scope{Name: afc.InstrumentationName},
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: waitBuckets},
		},
	)
}

// Shutdown flushes pending spans and metrics. Safe on nil or noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
