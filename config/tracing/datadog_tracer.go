package tracing

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type DatadogSpan struct {
	span ddtracer.Span
	ctx  context.Context
}

func (s *DatadogSpan) SetAttribute(key string, value any) {
	s.span.SetTag(key, value)
}

func (s *DatadogSpan) SetAttributes(attributes map[string]any) {
	for k, v := range attributes {
		s.span.SetTag(k, v)
	}
}

func (s *DatadogSpan) SetError(err error) {
	s.span.SetTag("error", err)
}

func (s *DatadogSpan) End() {
	s.span.Finish()
}

func (s *DatadogSpan) GetContext() context.Context {
	return s.ctx
}

type DatadogTracer struct {
	serviceName string
}

func NewDatadogTracer(serviceName string) *DatadogTracer {
	return &DatadogTracer{serviceName: serviceName}
}

func (t *DatadogTracer) StartSpan(ctx context.Context, operationName string, opts ...SpanOption) Span {
	ddOpts := []ddtracer.StartSpanOption{
		ddtracer.ServiceName(t.serviceName),
	}
	for k, v := range spanAttributes(opts) {
		ddOpts = append(ddOpts, ddtracer.Tag(k, v))
	}

	span, spanCtx := ddtracer.StartSpanFromContext(ctx, operationName, ddOpts...)
	return &DatadogSpan{span: span, ctx: spanCtx}
}

// DatadogTracerProvider reports to the local Datadog agent. Kafka clients
// are not instrumented with this provider.
type DatadogTracerProvider struct {
	options TracerProviderOptions
}

func (p *DatadogTracerProvider) GetOptions() TracerProviderOptions {
	return p.options
}

func (p *DatadogTracerProvider) Stop() {
	ddtracer.Stop()
}

func (p *DatadogTracerProvider) InitTracer(serviceName string) Tracer {
	return NewDatadogTracer(serviceName)
}

func (p *DatadogTracerProvider) GetKafkaHooks() []kgo.Hook {
	return nil
}

func NewDatadogTracerProvider(logger *slog.Logger, opts TracerProviderOptions) *DatadogTracerProvider {
	ddtracer.Start(
		ddtracer.WithServiceName(opts.ServiceName),
		ddtracer.WithEnv(opts.Env),
		ddtracer.WithAgentAddr(opts.ProviderURL),
	)

	logger.Info("Datadog tracer started",
		slog.String("service", opts.ServiceName),
		slog.String("agent", opts.ProviderURL),
	)

	return &DatadogTracerProvider{options: opts}
}
