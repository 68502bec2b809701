// Package obs sets up tracing. Spans go to an OTLP collector over gRPC when
// an endpoint is configured; otherwise a no-op provider is installed.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const Version = "0.1.0"

type Config struct {
	Endpoint    string
	ServiceName string
	Environment string
}

// InitTracer installs the global tracer provider and returns its shutdown
// function.
func InitTracer(ctx context.Context, conf Config) (trace.TracerProvider, func(context.Context) error, error) {
	if conf.Endpoint == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)

		return tp, func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.Dial(conf.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial otlp collector %s: %w", conf.Endpoint, err)
	}

	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()

		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(conf.ServiceName),
			semconv.ServiceVersionKey.String(Version),
			semconv.DeploymentEnvironmentKey.String(conf.Environment),
		),
	)
	if err != nil {
		_ = exp.Shutdown(ctx)

		return nil, nil, fmt.Errorf("create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	shutdown := func(ctx context.Context) error {
		defer conn.Close()

		return tp.Shutdown(ctx)
	}

	return tp, shutdown, nil
}
