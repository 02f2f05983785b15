package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const (
	otelMetricsInterval = 60 * time.Second
	otelShutdownTimeout = 5 * time.Second
)

type OTelSpan struct {
	span oteltrace.Span
	ctx  context.Context
}

func (s *OTelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(otelAttribute(key, value))
}

func (s *OTelSpan) SetAttributes(attributes map[string]any) {
	s.span.SetAttributes(otelAttributes(attributes)...)
}

func (s *OTelSpan) SetError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *OTelSpan) End() {
	s.span.End()
}

func (s *OTelSpan) GetContext() context.Context {
	return s.ctx
}

type OTelTracer struct {
	tracer oteltrace.Tracer
}

func NewOTelTracer(tracerName string) *OTelTracer {
	return &OTelTracer{tracer: otel.GetTracerProvider().Tracer(tracerName)}
}

func (t *OTelTracer) StartSpan(ctx context.Context, operationName string, opts ...SpanOption) Span {
	spanCtx, span := t.tracer.Start(
		ctx,
		operationName,
		oteltrace.WithAttributes(otelAttributes(spanAttributes(opts))...),
	)

	return &OTelSpan{span: span, ctx: spanCtx}
}

// OTelTracerProvider exports traces and metrics to an OTLP collector over gRPC.
// It is installed as the global otel provider.
type OTelTracerProvider struct {
	logger         *slog.Logger
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	options        TracerProviderOptions
}

// Stop flushes the pending spans and metrics.
func (p *OTelTracerProvider) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()

	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.Error("Could not shutdown tracer provider", slog.String("error", err.Error()))
	}

	if err := p.meterProvider.Shutdown(ctx); err != nil {
		p.logger.Error("Could not shutdown meter provider", slog.String("error", err.Error()))
	}
}

func (p *OTelTracerProvider) GetOptions() TracerProviderOptions {
	return p.options
}

func (p *OTelTracerProvider) InitTracer(serviceName string) Tracer {
	return NewOTelTracer(serviceName)
}

func (p *OTelTracerProvider) GetKafkaHooks() []kgo.Hook {
	tracer := kotel.NewTracer(
		kotel.TracerProvider(p.tracerProvider),
		kotel.TracerPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{})),
	)
	meter := kotel.NewMeter(kotel.MeterProvider(p.meterProvider))

	return kotel.NewKotel(kotel.WithTracer(tracer), kotel.WithMeter(meter)).Hooks()
}

// NewOTelTracerProvider returns nil when the exporters cannot be created.
func NewOTelTracerProvider(logger *slog.Logger, opts TracerProviderOptions) *OTelTracerProvider {
	ctx := context.Background()

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.ProviderURL)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(opts.ProviderURL)}
	if opts.SecureMode {
		creds := credentials.NewClientTLSFromCert(nil, "")
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	} else {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		logger.Error("Could not create open telemetry exporter", slog.String("error", err.Error()))
		return nil
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		logger.Error("Could not create open telemetry meter", slog.String("error", err.Error()))
		return nil
	}

	resources, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("library.language", "go"),
			attribute.String("deployment.environment", opts.Env),
		),
	)
	if err != nil {
		logger.Error("Could not set open telemetry resource", slog.String("error", err.Error()))
		return nil
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(resources),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(otelMetricsInterval))),
		sdkmetric.WithResource(resources),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	logger.Info("Open telemetry tracer started",
		slog.String("service", opts.ServiceName),
		slog.String("endpoint", opts.ProviderURL),
	)

	return &OTelTracerProvider{
		logger:         logger,
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		options:        opts,
	}
}

func otelAttributes(attributes map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, otelAttribute(k, v))
	}
	return attrs
}

func otelAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
