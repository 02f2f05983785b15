package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getlago/lago/billing-processor/config/tracing"
)

func TestTracerOptionsFromEnv(t *testing.T) {
	t.Run("Without tracing", func(t *testing.T) {
		t.Setenv(envTracingProvider, "")
		t.Setenv(envDatadogAgentHost, "")
		t.Setenv(envOtelExporterOtlpEndpoint, "")

		opts := tracerOptionsFromEnv()
		assert.Equal(t, tracing.TracingProviderNone, opts.TracingProvider)
		assert.Equal(t, "development", opts.Env)
	})

	t.Run("With a datadog agent", func(t *testing.T) {
		t.Setenv(envTracingProvider, "")
		t.Setenv(envEnv, "production")
		t.Setenv(envDatadogAgentHost, "datadog")
		t.Setenv(envDatadogAgentPort, "")
		t.Setenv(envDatadogService, "lago-billing")

		opts := tracerOptionsFromEnv()
		assert.Equal(t, tracing.TracingProviderDatadog, opts.TracingProvider)
		assert.Equal(t, "datadog:8126", opts.ProviderURL)
		assert.Equal(t, "lago-billing", opts.ServiceName)
		assert.Equal(t, "production", opts.Env)
	})

	t.Run("With an explicit otel provider", func(t *testing.T) {
		t.Setenv(envTracingProvider, "otel")
		t.Setenv(envDatadogAgentHost, "datadog")
		t.Setenv(envOtelExporterOtlpEndpoint, "collector:4317")
		t.Setenv(envOtelInsecure, "true")

		opts := tracerOptionsFromEnv()
		assert.Equal(t, tracing.TracingProviderOTel, opts.TracingProvider)
		assert.Equal(t, "collector:4317", opts.ProviderURL)
		assert.False(t, opts.SecureMode)
	})
}
