// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package tracing

import (
	"fmt"
	"time"
)

// TracingConfig represents the complete tracing configuration
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`

	Sampling SamplingConfig `yaml:"sampling" mapstructure:"sampling"`
	Exporter ExporterConfig `yaml:"exporter" mapstructure:"exporter"`

	ResourceAttributes map[string]string `yaml:"resource_attributes" mapstructure:"resource_attributes"`
	Propagators        []string          `yaml:"propagators" mapstructure:"propagators"`
}

// SamplingConfig represents sampling strategy configuration
type SamplingConfig struct {
	Type string  `yaml:"type" mapstructure:"type"` // always_on, always_off, traceidratio
	Rate float64 `yaml:"rate" mapstructure:"rate"` // 0.0-1.0 for traceidratio
}

// ExporterConfig represents the exporter configuration
type ExporterConfig struct {
	Type     string            `yaml:"type" mapstructure:"type"` // console, otlp
	Endpoint string            `yaml:"endpoint" mapstructure:"endpoint"`
	Headers  map[string]string `yaml:"headers" mapstructure:"headers"`
	Timeout  string            `yaml:"timeout" mapstructure:"timeout"`
	Insecure bool              `yaml:"insecure" mapstructure:"insecure"`
	// Protocol is http or grpc. Empty picks http for endpoints ending in /v1/traces.
	Protocol string `yaml:"protocol" mapstructure:"protocol"`
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		Enabled:     false,
		ServiceName: "swit-status",
		Sampling: SamplingConfig{
			Type: "always_on",
			Rate: 1,
		},
		Exporter: ExporterConfig{
			Type:    "console",
			Timeout: "10s",
		},
		Propagators: []string{"tracecontext", "baggage"},
	}
}

// Validate validates the tracing configuration
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when tracing is enabled")
	}

	switch c.Sampling.Type {
	case "always_on", "always_off":
	case "traceidratio":
		if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
			return fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %f", c.Sampling.Rate)
		}
	default:
		return fmt.Errorf("unsupported sampling type: %s", c.Sampling.Type)
	}

	switch c.Exporter.Type {
	case "console":
	case "otlp":
		if c.Exporter.Endpoint == "" {
			return fmt.Errorf("otlp exporter requires endpoint")
		}
	default:
		return fmt.Errorf("unsupported exporter type: %s", c.Exporter.Type)
	}
	if c.Exporter.Timeout != "" {
		if _, err := time.ParseDuration(c.Exporter.Timeout); err != nil {
			return fmt.Errorf("invalid exporter timeout %q: %w", c.Exporter.Timeout, err)
		}
	}
	return nil
}

// GetTimeout returns the exporter timeout, 10s when unset or invalid.
func (e *ExporterConfig) GetTimeout() time.Duration {
	if e.Timeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
