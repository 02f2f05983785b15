package tracing

import (
	"context"
	"log/slog"
	"sync"
)

type TracingProvider string

const (
	TracingProviderNone     TracingProvider = ""
	TracingProviderOTel     TracingProvider = "otel"
	TracingProviderDatadog  TracingProvider = "datadog"
	DefaultTracerName       string          = "lago-billing-processor"
	defaultDatadogAgentPort string          = "8126"
)

var (
	globalTracer Tracer = NewEmptyTracer()
	tracerMu     sync.RWMutex
)

// InitTracerProvider starts the provider selected by the options.
// An empty provider is returned when tracing is disabled or fails to start.
func InitTracerProvider(logger *slog.Logger, opts TracerProviderOptions) TracerProvider {
	if opts.ServiceName == "" {
		opts.ServiceName = DefaultTracerName
	}

	switch opts.TracingProvider {
	case TracingProviderOTel:
		if provider := NewOTelTracerProvider(logger, opts); provider != nil {
			return provider
		}
	case TracingProviderDatadog:
		return NewDatadogTracerProvider(logger, opts)
	}

	return &EmptyTracerProvider{options: opts}
}

// InitTracer installs the tracer used by StartSpan.
func InitTracer(provider TracerProvider) {
	tracer := provider.InitTracer(provider.GetOptions().ServiceName)

	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = tracer
}

func StartSpan(ctx context.Context, operationName string, opts ...SpanOption) Span {
	tracerMu.RLock()
	tracer := globalTracer
	tracerMu.RUnlock()

	return tracer.StartSpan(ctx, operationName, opts...)
}

func DatadogAgentAddr(host string, port string) string {
	if port == "" {
		port = defaultDatadogAgentPort
	}

	return host + ":" + port
}
