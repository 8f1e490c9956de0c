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

package status

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector with Prometheus.
type PrometheusMetricsCollector struct {
	checksTotal     *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
	reportsTotal    *prometheus.CounterVec
	reportDuration  prometheus.Histogram
	reportChecks    prometheus.Gauge
	dispatchedTotal *prometheus.CounterVec
	specErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// PrometheusMetricsConfig contains configuration for Prometheus metrics.
type PrometheusMetricsConfig struct {
	// Namespace is the Prometheus namespace for all metrics (default: "swit")
	Namespace string

	// Subsystem is the Prometheus subsystem for all metrics (default: "status")
	Subsystem string

	// Registry is the Prometheus registry to use. If nil, a new registry is created.
	Registry *prometheus.Registry

	// DurationBuckets defines the buckets for duration histograms.
	DurationBuckets []float64
}

var defaultDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// DefaultPrometheusMetricsConfig returns a default configuration for Prometheus metrics.
func DefaultPrometheusMetricsConfig() *PrometheusMetricsConfig {
	return &PrometheusMetricsConfig{
		Namespace:       "swit",
		Subsystem:       "status",
		Registry:        prometheus.NewRegistry(),
		DurationBuckets: defaultDurationBuckets,
	}
}

// NewPrometheusMetricsCollector creates the collector and registers its
// metrics with the configured registry.
func NewPrometheusMetricsCollector(config *PrometheusMetricsConfig) (*PrometheusMetricsCollector, error) {
	if config == nil {
		config = DefaultPrometheusMetricsConfig()
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Namespace == "" {
		config.Namespace = "swit"
	}
	if config.Subsystem == "" {
		config.Subsystem = "status"
	}
	if config.DurationBuckets == nil {
		config.DurationBuckets = defaultDurationBuckets
	}

	c := &PrometheusMetricsCollector{registry: config.Registry}

	c.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "checks_total",
			Help:      "Total number of check runs by outcome",
		},
		[]string{"check", "kind", "status"},
	)
	c.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "check_duration_seconds",
			Help:      "Duration of check runs in seconds",
			Buckets:   config.DurationBuckets,
		},
		[]string{"check", "kind"},
	)
	c.reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "reports_total",
			Help:      "Total number of synchronous reports by overall status",
		},
		[]string{"status"},
	)
	c.reportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "report_duration_seconds",
			Help:      "Duration of synchronous reports in seconds",
			Buckets:   config.DurationBuckets,
		},
	)
	c.reportChecks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "report_checks",
			Help:      "Number of checks in the last synchronous report",
		},
	)
	c.dispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dispatched_total",
			Help:      "Total number of checks submitted to the task queue",
		},
		[]string{"check", "kind", "success"},
	)
	c.specErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "spec_errors_total",
			Help:      "Total number of skipped configuration entries",
		},
		[]string{"check"},
	)

	metrics := []prometheus.Collector{
		c.checksTotal,
		c.checkDuration,
		c.reportsTotal,
		c.reportDuration,
		c.reportChecks,
		c.dispatchedTotal,
		c.specErrorsTotal,
	}
	for _, m := range metrics {
		if err := config.Registry.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusMetricsCollector) RecordCheck(name, kind string, status Status, elapsed time.Duration) {
	c.checksTotal.WithLabelValues(name, kind, status.String()).Inc()
	c.checkDuration.WithLabelValues(name, kind).Observe(elapsed.Seconds())
}

func (c *PrometheusMetricsCollector) RecordReport(status Status, checks int, elapsed time.Duration) {
	c.reportsTotal.WithLabelValues(status.String()).Inc()
	c.reportDuration.Observe(elapsed.Seconds())
	c.reportChecks.Set(float64(checks))
}

func (c *PrometheusMetricsCollector) RecordDispatch(name, kind string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	c.dispatchedTotal.WithLabelValues(name, kind, success).Inc()
}

func (c *PrometheusMetricsCollector) RecordSpecError(name string) {
	c.specErrorsTotal.WithLabelValues(name).Inc()
}

// GetRegistry returns the registry the metrics are registered with.
func (c *PrometheusMetricsCollector) GetRegistry() *prometheus.Registry {
	return c.registry
}
