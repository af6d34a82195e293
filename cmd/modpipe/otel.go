package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Enable OTLP HTTP exporter
// For relevant environment variables:
// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
// At a minimum, you need to set
// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
//
// The exporter lives for the rest of the process; batched spans are flushed
// by the tracer provider.
func configOTEL(serviceName string) {
	ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if ep == "" {
		return
	}
	slog.Info("setting up trace exporter", "endpoint", ep)

	exp, err := otlptracehttp.New(context.Background())
	if err != nil {
		log.Fatal("failed to create trace exporter", "error", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
			attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
		)),
	)
	otel.SetTracerProvider(tp)
}
