// Package otel wires optional OpenTelemetry tracing around ruleforge
// commands. Tracing stays off unless --otel is passed.
package otel

import (
	"errors"
)

// OTLP exporter protocols
const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

const serviceName = "ruleforge"

// Config for tracer setup
type Config struct {
	Enabled     bool
	Endpoint    string // "http://localhost:4318" or "localhost:4317"
	Protocol    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

func DefaultConfig() Config {
	return Config{
		Protocol:    ProtocolHTTP,
		ServiceName: serviceName,
		SampleRatio: 1.0,
	}
}

// Validate is a no-op while tracing is disabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Protocol != ProtocolHTTP && c.Protocol != ProtocolGRPC {
		return errors.New("otel: protocol must be 'otlphttp' or 'otlpgrpc'")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("otel: sample-ratio must be between 0 and 1")
	}
	return nil
}

func (c Config) endpoint(lookup func(string) string) string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if env := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); env != "" {
		return env
	}
	if c.Protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318"
}
