package telemetry

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	Logger = zap.NewNop()

	serviceName    = "wallet"
	tracerProvider *sdktrace.TracerProvider
)

// InitTelemetry sets up the process logger and, when otlpEndpoint is not empty,
// an OTLP/HTTP trace exporter.
func InitTelemetry(name, otlpEndpoint string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	Logger = logger.With(zap.String("service", name))
	serviceName = name

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if otlpEndpoint == "" {
		Logger.Info("Tracing exporter disabled")
		return nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(otlpEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
	))
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	return nil
}

func Shutdown(ctx context.Context) error {
	var errs error
	if tracerProvider != nil {
		errs = errors.Join(errs, tracerProvider.Shutdown(ctx))
	}
	_ = Logger.Sync()
	return errs
}

func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

func TracingMiddleware() gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceID returns the trace id of the span in ctx, or an empty string.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
