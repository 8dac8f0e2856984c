package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/localrag/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.ExportInterval = 0

	tel, err := New(context.Background(), cfg, nil, WithTraceExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("test").Start(context.Background(), "Service.Query")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Service.Query", spans[0].Name)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
}

func TestTelemetry_ShutdownMarksUnhealthy(t *testing.T) {
	tt := NewTestTelemetry()
	require.True(t, tt.IsEnabled())
	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.IsEnabled())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("test").Start(context.Background(), "Service.Ingest")
	span.SetAttributes(attribute.Int("files_processed", 3))
	span.End()

	tt.AssertSpanExists(t, "Service.Ingest")
	tt.AssertSpanAttribute(t, "Service.Ingest", "files_processed", int64(3))
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "disabled skips checks", mutate: func(c *Config) {
			c.Enabled = false
			c.Endpoint = ""
		}},
		{name: "valid local", mutate: func(c *Config) {}},
		{name: "valid remote tls", mutate: func(c *Config) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}},
		{name: "insecure remote", mutate: func(c *Config) { c.Endpoint = "otel.example.com:4317" }, wantErr: "insecure"},
		{name: "insecure loopback ip", mutate: func(c *Config) { c.Endpoint = "127.0.0.1:4317" }},
		{name: "insecure ipv6 loopback", mutate: func(c *Config) { c.Endpoint = "[::1]:4317" }},
		{name: "http scheme", mutate: func(c *Config) {
			c.Endpoint = "http://localhost:4318"
			c.Protocol = ProtocolHTTP
		}},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service_name"},
		{name: "bad protocol", mutate: func(c *Config) { c.Protocol = "thrift" }, wantErr: "protocol"},
		{name: "bad sample rate", mutate: func(c *Config) { c.SampleRate = 2 }, wantErr: "sample rate"},
		{name: "negative interval", mutate: func(c *Config) { c.ExportInterval = -time.Second }, wantErr: "export interval"},
		{name: "zero shutdown", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	tc := FromAppConfig(&config.Config{
		TelemetryEnabled:        true,
		TelemetryEndpoint:       "collector:4318",
		TelemetryProtocol:       ProtocolHTTP,
		TelemetrySampleRate:     0.25,
		TelemetryExportInterval: 30 * time.Second,
		ShutdownTimeout:         2 * time.Second,
	}, "1.0.0")

	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4318", tc.Endpoint)
	assert.Equal(t, ProtocolHTTP, tc.Protocol)
	assert.False(t, tc.Insecure)
	assert.InDelta(t, 0.25, tc.SampleRate, 1e-9)
	assert.Equal(t, 30*time.Second, tc.ExportInterval)
	assert.Equal(t, 2*time.Second, tc.ShutdownTimeout)
	assert.Equal(t, "1.0.0", tc.ServiceVersion)
	assert.Equal(t, "localrag", tc.ServiceName)

	assert.False(t, FromAppConfig(nil, "").Enabled)
}
