// Package telemetry provides OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans emitted by this module.
const InstrumentationName = "github.com/JakeFAU/essaypub"

// InitTracerProvider initializes the global trace provider.
// Spans are recorded but not exported unless opts add a span processor or exporter.
func InitTracerProvider(
	ctx context.Context,
	serviceName string,
	opts ...sdktrace.TracerProviderOption,
) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// CloudTraceExporter returns a provider option that batches spans to Google Cloud Trace.
// An empty projectID lets the exporter detect the project from the environment.
func CloudTraceExporter(projectID string) (sdktrace.TracerProviderOption, error) {
	var opts []texporter.Option
	if projectID != "" {
		opts = append(opts, texporter.WithProjectID(projectID))
	}
	exporter, err := texporter.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google trace exporter: %w", err)
	}
	return sdktrace.WithBatcher(exporter), nil
}
