package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
)

var tracer trace.Tracer

// Init initializes OpenTelemetry tracing. With no endpoint it installs
// nothing and spans go to the global no-op provider.
func Init(serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("OpenTelemetry tracing disabled (no OTLP endpoint)")
		return func(ctx context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	conn, err := grpc.NewClient(otlpEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(serviceName)

	logger.Info("OpenTelemetry tracing initialized", "endpoint", otlpEndpoint)

	return tp.Shutdown, nil
}

// Get returns the global tracer
func Get() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("picpic-transcode")
	}
	return tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Get().Start(ctx, name)
}

// StartAttempt opens the span covering one transcode attempt and tags the
// returned context with its trace id for logging.
func StartAttempt(ctx context.Context, attempt *domain.Attempt) (context.Context, trace.Span) {
	ctx, span := Get().Start(ctx, "transcode.attempt",
		trace.WithAttributes(
			attribute.String("attempt.id", attempt.ID),
			attribute.String("job.label", attempt.Label),
			attribute.String("job.source", attempt.SourcePath),
			attribute.String("job.destination", attempt.DestinationPath),
		),
	)
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = logger.WithTrace(ctx, sc.TraceID().String())
	}
	return ctx, span
}

// EndAttempt records the outcome on span and ends it.
func EndAttempt(span trace.Span, attempt *domain.Attempt) {
	span.SetAttributes(
		attribute.String("attempt.status", string(attempt.Status)),
		attribute.Int("attempt.exit_code", attempt.ExitCode),
		attribute.Bool("attempt.source_deleted", attempt.SourceDeleted),
	)
	if attempt.Status == domain.AttemptStatusFailed {
		span.SetStatus(codes.Error, attempt.Error)
	}
	span.End()
}
