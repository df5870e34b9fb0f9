package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xizhibei/go-jsonrpc"

// Telemetry records traces and metrics for JSON-RPC exchanges.
type Telemetry interface {
	// StartSpan starts a span. A disabled telemetry returns ctx unchanged.
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// RecordExchange records one transport exchange with its emitted status.
	RecordExchange(ctx context.Context, duration time.Duration, status int, err error)

	// RecordDispatch records one dispatched request. code is 0 on success,
	// otherwise the JSON-RPC error code.
	RecordDispatch(ctx context.Context, duration time.Duration, method string, code int)

	IsEnabled() bool
	Shutdown(ctx context.Context) error
}

// TelemetryImpl is the OpenTelemetry backed Telemetry.
type TelemetryImpl struct {
	tp               *sdktrace.TracerProvider
	mp               *sdkmetric.MeterProvider
	tracer           trace.Tracer
	meter            metric.Meter
	exchangeDuration metric.Float64Histogram
	dispatchDuration metric.Float64Histogram
	errorCounter     metric.Int64Counter
	enabled          bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string

	TraceWriter  io.Writer
	MetricWriter io.Writer
	Debug        bool
	Enabled      bool
}

var durationBuckets = []float64{1, 5, 10, 25, 50, 75, 100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000}

// New creates a Telemetry. With Enabled unset it returns a disabled instance;
// with Debug set, spans and metrics are written to the configured writers
// instead of an OTLP collector.
func New(ctx context.Context, cfg Config) (*TelemetryImpl, error) {
	if !cfg.Enabled {
		return Discard(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "jsonrpc_*_duration"},
				sdkmetric.Stream{
					Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationBuckets},
				},
			),
		),
	)
	otel.SetMeterProvider(mp)

	return newTelemetry(tp, mp, true)
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Debug {
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
		)
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	if cfg.Debug {
		w := cfg.MetricWriter
		if w == nil {
			w = os.Stdout
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return stdoutmetric.New(
			stdoutmetric.WithEncoder(enc),
			stdoutmetric.WithoutTimestamps(),
		)
	}
	return otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
}

func newTelemetry(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, enabled bool) (*TelemetryImpl, error) {
	meter := mp.Meter(instrumentationName)

	exchangeDuration, err := meter.Float64Histogram(
		"jsonrpc_exchange_duration",
		metric.WithDescription("Duration of JSON-RPC exchanges"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange duration histogram: %w", err)
	}

	dispatchDuration, err := meter.Float64Histogram(
		"jsonrpc_dispatch_duration",
		metric.WithDescription("Duration of dispatched JSON-RPC requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch duration histogram: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"jsonrpc_error_count",
		metric.WithDescription("Number of JSON-RPC error responses and failed exchanges"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &TelemetryImpl{
		tp:               tp,
		mp:               mp,
		tracer:           tp.Tracer(instrumentationName),
		meter:            meter,
		exchangeDuration: exchangeDuration,
		dispatchDuration: dispatchDuration,
		errorCounter:     errorCounter,
		enabled:          enabled,
	}, nil
}

// NewNoop creates a disabled Telemetry backed by providers that never sample
// and have no readers.
func NewNoop() (*TelemetryImpl, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("noop"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.NeverSample()),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)
	return newTelemetry(tp, mp, false)
}

// Discard returns a disabled Telemetry without any providers.
func Discard() *TelemetryImpl {
	return &TelemetryImpl{}
}

// NewFromEnv creates a Telemetry configured from environment variables:
// OTEL_ENABLED, OTEL_DEBUG, ENVIRONMENT and OTEL_EXPORTER_OTLP_ENDPOINT.
func NewFromEnv(ctx context.Context, serviceName, serviceVersion string) (*TelemetryImpl, error) {
	enabled, _ := strconv.ParseBool(getEnvOrDefault("OTEL_ENABLED", "false"))
	debug, _ := strconv.ParseBool(getEnvOrDefault("OTEL_DEBUG", "false"))

	return New(ctx, Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Debug:          debug,
		Enabled:        enabled,
	})
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (t *TelemetryImpl) IsEnabled() bool {
	return t.enabled
}

// Shutdown flushes and stops the providers.
func (t *TelemetryImpl) Shutdown(ctx context.Context) error {
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown trace provider: %w", err)
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}
	return nil
}

func (t *TelemetryImpl) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !t.enabled || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, opts...)
}

func (t *TelemetryImpl) RecordExchange(ctx context.Context, duration time.Duration, status int, err error) {
	if !t.enabled || t.exchangeDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("status", status),
	}
	t.exchangeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
		t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (t *TelemetryImpl) RecordDispatch(ctx context.Context, duration time.Duration, method string, code int) {
	if !t.enabled || t.dispatchDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.Int("code", code),
	}
	t.dispatchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if code != 0 {
		t.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
