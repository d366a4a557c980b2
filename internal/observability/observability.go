// Package observability configures the process-wide slog handler.
//
// Formats:
//   - text: human-readable, the default when stderr is a terminal
//   - json: structured output for log shippers
//   - otlp: exports records through the OpenTelemetry log bridge, using
//     the standard OTEL_EXPORTER_OTLP_* environment variables; without an
//     endpoint configured, records go to stdout in OTLP JSON for local
//     debugging
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "voyage-cli"

// Instrument installs the default slog handler for the given level and
// format. Call once at process start, before any component logs.
func Instrument(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	case "otlp":
		handler, err := newOTLPHandler(level)
		if err != nil {
			return fmt.Errorf("setting up OTLP logging: %w", err)
		}
		slog.SetDefault(slog.New(handler))
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	return nil
}

// newOTLPHandler bridges slog into an OTel logger provider.
func newOTLPHandler(level slog.Level) (slog.Handler, error) {
	ctx := context.Background()

	exporter, err := newExporter(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	// Simple (synchronous) processing: a short-lived CLI exits before a
	// batch processor would flush.
	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(minsev.NewLogProcessor(
			sdklog.NewSimpleProcessor(exporter),
			severity(level),
		)),
	)

	return otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)), nil
}

// newExporter picks the OTLP transport from the standard environment
// variables, with a stdout exporter when no endpoint is configured.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" &&
		os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return stdoutlog.New()
	}

	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
		return otlploggrpc.New(ctx)
	}
	return otlploghttp.New(ctx)
}

// severity maps a slog level to the minimum OTel severity to export.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
