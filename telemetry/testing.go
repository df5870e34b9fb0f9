package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is an enabled Telemetry whose spans and metrics stay in memory.
type TestTelemetry struct {
	*TelemetryImpl
	mr    *sdkmetric.ManualReader
	spans *tracetest.SpanRecorder
}

// NewTestTelemetry creates a TestTelemetry and installs its providers globally.
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	otel.SetTracerProvider(tp)

	mr := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(mr))
	otel.SetMeterProvider(mp)

	impl, err := newTelemetry(tp, mp, true)
	if err != nil {
		t.Fatalf("create test telemetry: %v", err)
	}

	return &TestTelemetry{
		TelemetryImpl: impl,
		mr:            mr,
		spans:         spans,
	}
}

// GetReader returns the metric reader for testing
func (tt *TestTelemetry) GetReader() *sdkmetric.ManualReader {
	return tt.mr
}

// EndedSpanNames returns the names of finished spans in end order.
func (tt *TestTelemetry) EndedSpanNames() []string {
	ended := tt.spans.Ended()
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	return names
}

// Shutdown gracefully shuts down the test telemetry providers
func (tt *TestTelemetry) Shutdown(ctx context.Context) error {
	return tt.TelemetryImpl.Shutdown(ctx)
}
