package tracing

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Span is the part of a tracing span used by the processors.
type Span interface {
	SetAttribute(key string, value any)
	SetAttributes(attributes map[string]any)
	SetError(err error)
	End()
	GetContext() context.Context
}

type Tracer interface {
	StartSpan(ctx context.Context, operationName string, opts ...SpanOption) Span
}

type SpanOption func(*SpanConfig)

type SpanConfig struct {
	Tags       map[string]any
	Attributes map[string]any
}

func WithTag(key string, value any) SpanOption {
	return func(cfg *SpanConfig) {
		if cfg.Tags == nil {
			cfg.Tags = make(map[string]any)
		}
		cfg.Tags[key] = value
	}
}

func WithAttributes(attributes map[string]any) SpanOption {
	return func(cfg *SpanConfig) {
		if cfg.Attributes == nil {
			cfg.Attributes = make(map[string]any, len(attributes))
		}
		for k, v := range attributes {
			cfg.Attributes[k] = v
		}
	}
}

// spanAttributes merges the options into a single attribute set.
// Tags win over attributes using the same key.
func spanAttributes(opts []SpanOption) map[string]any {
	config := &SpanConfig{}
	for _, opt := range opts {
		opt(config)
	}

	merged := make(map[string]any, len(config.Attributes)+len(config.Tags))
	for k, v := range config.Attributes {
		merged[k] = v
	}
	for k, v := range config.Tags {
		merged[k] = v
	}

	return merged
}

// TracerProvider owns the lifecycle of a tracing backend.
type TracerProvider interface {
	GetOptions() TracerProviderOptions
	InitTracer(serviceName string) Tracer
	GetKafkaHooks() []kgo.Hook
	Stop()
}

type TracerProviderOptions struct {
	Env             string
	ServiceName     string
	ProviderURL     string
	SecureMode      bool
	TracingProvider TracingProvider
}
