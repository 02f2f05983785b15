package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/processors"
	"github.com/getlago/lago/billing-processor/utils"
)

const (
	envEnv                      = "ENV"
	envSentryDsn                = "SENTRY_DSN"
	envTracingProvider          = "TRACING_PROVIDER"
	envOtelExporterOtlpEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOtelInsecure             = "OTEL_INSECURE"
	envOtelServiceName          = "OTEL_SERVICE_NAME"

	// Datadog environment variable
	envDatadogAgentHost = "DD_AGENT_HOST"
	envDatadogAgentPort = "DD_TRACE_AGENT_PORT"
	envDatadogService   = "DD_SERVICE_NAME"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).
		With("service", "billing_processor")
	slog.SetDefault(logger)

	setupGracefulShutdown(cancel, logger)

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv(envSentryDsn),
		Environment:      os.Getenv(envEnv),
		Debug:            false,
		AttachStacktrace: true,
	})

	if err != nil {
		fmt.Printf("Sentry initialization failed: %v\n", err)
	}

	defer sentry.Flush(2 * time.Second)

	tracerProvider := tracing.InitTracerProvider(logger, tracerOptionsFromEnv())
	tracing.InitTracer(tracerProvider)
	defer tracerProvider.Stop()

	// start processing events and tasks & loop until shutdown
	processors.StartProcessing(ctx, &processors.Config{
		Logger:         logger,
		UseTelemetry:   tracerProvider.GetOptions().TracingProvider == tracing.TracingProviderOTel,
		TracerProvider: tracerProvider,
	})
}

// tracerOptionsFromEnv falls back on the provider whose agent is configured
// when TRACING_PROVIDER is not set.
func tracerOptionsFromEnv() tracing.TracerProviderOptions {
	provider := tracing.TracingProvider(os.Getenv(envTracingProvider))
	if provider == tracing.TracingProviderNone {
		switch {
		case os.Getenv(envDatadogAgentHost) != "":
			provider = tracing.TracingProviderDatadog
		case os.Getenv(envOtelExporterOtlpEndpoint) != "":
			provider = tracing.TracingProviderOTel
		}
	}

	opts := tracing.TracerProviderOptions{
		Env:             utils.GetEnvOrDefault(envEnv, "development"),
		TracingProvider: provider,
	}

	switch provider {
	case tracing.TracingProviderOTel:
		opts.ServiceName = os.Getenv(envOtelServiceName)
		opts.ProviderURL = os.Getenv(envOtelExporterOtlpEndpoint)
		opts.SecureMode = !utils.GetEnvAsBool(envOtelInsecure, false)
	case tracing.TracingProviderDatadog:
		opts.ServiceName = os.Getenv(envDatadogService)
		opts.ProviderURL = tracing.DatadogAgentAddr(os.Getenv(envDatadogAgentHost), os.Getenv(envDatadogAgentPort))
	}

	return opts
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	signChan := make(chan os.Signal, 1)
	signal.Notify(signChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()
}
