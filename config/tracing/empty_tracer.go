package tracing

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// EmptySpan only carries the context, used when tracing is disabled.
type EmptySpan struct {
	ctx context.Context
}

func (s EmptySpan) SetAttribute(key string, value any)      {}
func (s EmptySpan) SetAttributes(attributes map[string]any) {}
func (s EmptySpan) SetError(err error)                      {}
func (s EmptySpan) End()                                    {}
func (s EmptySpan) GetContext() context.Context             { return s.ctx }

type EmptyTracer struct{}

func NewEmptyTracer() *EmptyTracer {
	return &EmptyTracer{}
}

func (t *EmptyTracer) StartSpan(ctx context.Context, operationName string, opts ...SpanOption) Span {
	if ctx == nil {
		ctx = context.Background()
	}

	return EmptySpan{ctx: ctx}
}

type EmptyTracerProvider struct {
	options TracerProviderOptions
}

func (p *EmptyTracerProvider) GetOptions() TracerProviderOptions {
	return p.options
}

func (p *EmptyTracerProvider) Stop() {}

func (p *EmptyTracerProvider) InitTracer(serviceName string) Tracer {
	return NewEmptyTracer()
}

func (p *EmptyTracerProvider) GetKafkaHooks() []kgo.Hook {
	return nil
}
