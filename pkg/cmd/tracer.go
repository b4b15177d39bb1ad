package cmd

import (
	"context"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns an OTLP-exporting tracer when enabled, and the global no-op tracer otherwise.
// The returned function flushes pending spans.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string, logger *slog.Logger) (trace.Tracer, func()) {
	if !enabled {
		return otel.Tracer(serviceName), func() {}
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)

		return otel.Tracer(serviceName), func() {}
	}

	return tracer, func() {
		if err := otelhelper.Shutdown(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}
