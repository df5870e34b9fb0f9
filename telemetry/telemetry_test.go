package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type TelemetrySuite struct {
	suite.Suite
	ctx context.Context
}

func (s *TelemetrySuite) SetupTest() {
	s.ctx = context.Background()
}

func TestTelemetrySuite(t *testing.T) {
	suite.Run(t, new(TelemetrySuite))
}

func (s *TelemetrySuite) TestNewDebug() {
	tel, err := New(s.ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Debug:          true,
		Enabled:        true,
		TraceWriter:    io.Discard,
		MetricWriter:   io.Discard,
	})
	s.Require().NoError(err)
	s.True(tel.IsEnabled())
	s.NotNil(tel.tp)
	s.NotNil(tel.mp)
	s.NotNil(tel.exchangeDuration)
	s.NotNil(tel.dispatchDuration)
	s.NotNil(tel.errorCounter)
	s.NoError(tel.Shutdown(s.ctx))
}

func (s *TelemetrySuite) TestNewDisabled() {
	tel, err := New(s.ctx, Config{ServiceName: "test-service"})
	s.NoError(err)
	s.False(tel.IsEnabled())
	s.NoError(tel.Shutdown(s.ctx))
}

func (s *TelemetrySuite) TestNewNoop() {
	tel, err := NewNoop()
	s.NoError(err)
	s.False(tel.IsEnabled())
	s.NotNil(tel.tp)
	s.NotNil(tel.mp)
}

func (s *TelemetrySuite) TestStartSpan() {
	testTel := NewTestTelemetry(s.T())
	defer testTel.Shutdown(s.ctx)

	ctx, span := testTel.StartSpan(s.ctx, "test-span")
	s.NotNil(span)
	s.NotEqual(s.ctx, ctx)
	span.End()
	s.Equal([]string{"test-span"}, testTel.EndedSpanNames())

	// Disabled telemetry leaves the context untouched
	ctx, span = Discard().StartSpan(s.ctx, "test-span")
	s.NotNil(span)
	s.Equal(s.ctx, ctx)
	span.End()
}

func (s *TelemetrySuite) TestRecord() {
	testTel := NewTestTelemetry(s.T())
	defer testTel.Shutdown(s.ctx)

	testTel.RecordDispatch(s.ctx, 10*time.Millisecond, "add", 0)
	testTel.RecordDispatch(s.ctx, 10*time.Millisecond, "add", -32602)
	testTel.RecordExchange(s.ctx, 20*time.Millisecond, 200, nil)
	testTel.RecordExchange(s.ctx, 20*time.Millisecond, 500, errors.New("short body"))

	var rm metricdata.ResourceMetrics
	s.Require().NoError(testTel.GetReader().Collect(s.ctx, &rm))
	s.Require().NotEmpty(rm.ScopeMetrics)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	s.True(names["jsonrpc_exchange_duration"])
	s.True(names["jsonrpc_dispatch_duration"])
	s.True(names["jsonrpc_error_count"])

	// Must not panic without providers
	Discard().RecordDispatch(s.ctx, time.Millisecond, "add", 0)
	Discard().RecordExchange(s.ctx, time.Millisecond, 500, errors.New("x"))
}

func (s *TelemetrySuite) TestNewFromEnv() {
	os.Setenv("OTEL_ENABLED", "false")
	defer os.Unsetenv("OTEL_ENABLED")

	tel, err := NewFromEnv(s.ctx, "test-service", "1.0.0")
	s.NoError(err)
	s.NotNil(tel)
	s.False(tel.IsEnabled())
}

func (s *TelemetrySuite) TestGetEnvOrDefault() {
	os.Setenv("TEST_ENV_VAR", "test-value")
	s.Equal("test-value", getEnvOrDefault("TEST_ENV_VAR", "default-value"))

	os.Unsetenv("TEST_ENV_VAR")
	s.Equal("default-value", getEnvOrDefault("TEST_ENV_VAR", "default-value"))
}
