package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationScope = "github.com/smartcare-health/smartqueue"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram
	CheckInCount    metric.Int64Counter
	OverrideCount   metric.Int64Counter
	AssignmentCount metric.Int64Counter
	QueueDepth      metric.Int64UpDownCounter
	WaitMinutes     metric.Float64Histogram
}

// Setup initializes OpenTelemetry trace and metric pipelines
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationScope)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkInCount, err := meter.Int64Counter(
		"queue.checkin.count",
		metric.WithDescription("Number of patient check-ins"),
	)
	if err != nil {
		return nil, err
	}

	overrideCount, err := meter.Int64Counter(
		"queue.override.count",
		metric.WithDescription("Number of emergency overrides"),
	)
	if err != nil {
		return nil, err
	}

	assignmentCount, err := meter.Int64Counter(
		"pool.assignment.count",
		metric.WithDescription("Number of spare doctor assignments"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"queue.depth",
		metric.WithDescription("Number of active entries across queues"),
	)
	if err != nil {
		return nil, err
	}

	waitMinutes, err := meter.Float64Histogram(
		"queue.wait.minutes",
		metric.WithDescription("Wait time from check-in to being called"),
		metric.WithUnit("min"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		CheckInCount:    checkInCount,
		OverrideCount:   overrideCount,
		AssignmentCount: assignmentCount,
		QueueDepth:      queueDepth,
		WaitMinutes:     waitMinutes,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationScope)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordRequestMetric records an HTTP request metric with attributes
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCheckIn records a patient check-in for a department
func RecordCheckIn(ctx context.Context, metrics *Metrics, department string, severity int) {
	attrs := []attribute.KeyValue{
		attribute.String("department", department),
		attribute.Int("severity", severity),
	}
	metrics.CheckInCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.QueueDepth.Add(ctx, 1, metric.WithAttributes(attribute.String("department", department)))
}

// RecordDeparture records a patient leaving the waiting queue
func RecordDeparture(ctx context.Context, metrics *Metrics, department string, waited time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("department", department),
	}
	metrics.QueueDepth.Add(ctx, -1, metric.WithAttributes(attrs...))
	metrics.WaitMinutes.Record(ctx, waited.Minutes(), metric.WithAttributes(attrs...))
}

// RecordOverride records an emergency override
func RecordOverride(ctx context.Context, metrics *Metrics, department string) {
	metrics.OverrideCount.Add(ctx, 1, metric.WithAttributes(attribute.String("department", department)))
}

// RecordAssignment records a spare doctor assignment or release
func RecordAssignment(ctx context.Context, metrics *Metrics, department, action string) {
	attrs := []attribute.KeyValue{
		attribute.String("department", department),
		attribute.String("action", action),
	}
	metrics.AssignmentCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}
