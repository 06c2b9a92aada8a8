// =============================================================================
// Conclave OpenTelemetry SDK Initialization
// =============================================================================
// 为 persona.<kind> 与 session.ask span 安装导出器。资源上带有议会的
// 模型与角色名单，便于在后端按议会筛选。禁用时全局 provider 保持 noop。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/conclave/config"
)

// DefaultServiceName 未配置服务名时使用的名称
const DefaultServiceName = "conclave"

// 插桩范围，与各包内 otel.Tracer 的默认名称一致
const (
	PersonaScope = "github.com/BaSui01/conclave/agent/persona"
	SessionScope = "github.com/BaSui01/conclave/agent/session"
)

// 议会资源属性
const (
	AttrLLMProvider  = attribute.Key("conclave.llm.provider")
	AttrLLMModel     = attribute.Key("conclave.llm.model")
	AttrPersonas     = attribute.Key("conclave.personas")
	AttrPersonaCount = attribute.Key("conclave.persona.count")
	AttrMaxRounds    = attribute.Key("conclave.consensus.max_rounds")
)

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 禁用时两者均为 nil，Shutdown 为空操作。
type Providers struct {
	tp  *sdktrace.TracerProvider
	mp  *sdkmetric.MeterProvider
	res *resource.Resource
}

// Init 按 cfg.Telemetry 初始化 OTel SDK，未启用时返回 noop Providers
func Init(cfg *config.Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tc := cfg.Telemetry
	if !tc.Enabled {
		logger.Debug("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if tc.OTLPEndpoint == "" {
		return nil, errors.New("telemetry enabled without otlp_endpoint")
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, tc, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, tc, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", tc.OTLPEndpoint),
		zap.String("service_name", serviceName(tc)),
		zap.Float64("sample_rate", tc.SampleRate),
		zap.Int("personas", len(cfg.Personas)),
	)

	return &Providers{tp: tp, mp: mp, res: res}, nil
}

func serviceName(tc config.TelemetryConfig) string {
	if tc.ServiceName == "" {
		return DefaultServiceName
	}
	return tc.ServiceName
}

// newResource 描述当前议会：服务身份、补全模型与角色名单
func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	names := make([]string, 0, len(cfg.Personas))
	for _, p := range cfg.Personas {
		names = append(names, p.Name)
	}
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(cfg.Telemetry)),
			semconv.ServiceVersionKey.String(buildVersion()),
			AttrLLMProvider.String(cfg.LLM.Provider),
			AttrLLMModel.String(cfg.LLM.Model),
			AttrPersonas.StringSlice(names),
			AttrPersonaCount.Int(len(names)),
			AttrMaxRounds.Int(cfg.Consensus.MaxRounds),
		),
	)
}

// 每个问题只有一个 session.ask 根 span，采样决定沿父 span 传给所有 persona span
func newTracerProvider(ctx context.Context, tc config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(tc.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRate))),
	), nil
}

func newMeterProvider(ctx context.Context, tc config.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(tc.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// Enabled 报告是否安装了真实的 SDK provider
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Resource 返回议会资源，未启用时为 nil
func (p *Providers) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

// PersonaTracer 产生 persona.answer / persona.evaluate / persona.revise span
func (p *Providers) PersonaTracer() trace.Tracer { return p.tracer(PersonaScope) }

// SessionTracer 产生 session.ask span
func (p *Providers) SessionTracer() trace.Tracer { return p.tracer(SessionScope) }

func (p *Providers) tracer(scope string) trace.Tracer {
	if p.Enabled() {
		return p.tp.Tracer(scope)
	}
	return otel.Tracer(scope)
}

// Shutdown 刷新未导出的 span 与指标并关闭导出器。nil 与 noop 均安全。
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

// buildVersion 从构建信息中读取模块版本，取不到时返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
