// Package telemetry exports localrag traces and metrics over OTLP.
//
// Disabled by default: components always create spans and instruments
// through the otel globals, which stay no-ops until New installs real
// providers.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/localrag/internal/config"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string

	// SampleRate is the fraction of root traces kept, in [0, 1].
	SampleRate float64

	// ExportInterval is the metric push period. Zero disables metrics.
	ExportInterval time.Duration

	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns disabled telemetry pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "localrag",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromAppConfig derives telemetry settings from the telemetry_* keys.
func FromAppConfig(cfg *config.Config, version string) *Config {
	tc := NewDefaultConfig()
	if version != "" {
		tc.ServiceVersion = version
	}
	if cfg == nil {
		return tc
	}
	tc.Enabled = cfg.TelemetryEnabled
	if cfg.TelemetryEndpoint != "" {
		tc.Endpoint = cfg.TelemetryEndpoint
	}
	if cfg.TelemetryProtocol != "" {
		tc.Protocol = cfg.TelemetryProtocol
	}
	tc.Insecure = cfg.TelemetryInsecure
	tc.SampleRate = cfg.TelemetrySampleRate
	tc.ExportInterval = cfg.TelemetryExportInterval
	if cfg.ShutdownTimeout > 0 {
		tc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return tc
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	// Plaintext is only allowed to a collector on this machine.
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set telemetry_insecure=false or use a local endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	if c.ExportInterval < 0 {
		return fmt.Errorf("export interval must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}

	switch {
	case strings.HasPrefix(host, "["):
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	case strings.Count(host, ":") == 1:
		host = host[:strings.LastIndex(host, ":")]
	}

	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
