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
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracingManager defines the interface for tracing management
type TracingManager interface {
	// Initialize sets up the tracer provider from config.
	Initialize(ctx context.Context, config *TracingConfig) error

	// StartSpan creates a new span with the given operation name.
	StartSpan(ctx context.Context, operationName string, opts ...SpanOption) (context.Context, Span)

	// SpanFromContext retrieves the current span from context.
	SpanFromContext(ctx context.Context) Span

	// InjectHTTPHeaders injects tracing context into HTTP headers.
	InjectHTTPHeaders(ctx context.Context, headers http.Header)

	// ExtractHTTPHeaders extracts tracing context from HTTP headers.
	ExtractHTTPHeaders(headers http.Header) context.Context

	// InjectMap writes tracing context into a string map carried by a task.
	InjectMap(ctx context.Context, carrier map[string]string)

	// ExtractMap restores tracing context from a task's string map.
	ExtractMap(ctx context.Context, carrier map[string]string) context.Context

	// Shutdown flushes and stops the tracer provider.
	Shutdown(ctx context.Context) error
}

// Span is the subset of an OpenTelemetry span used by the service.
type Span interface {
	SetAttribute(key string, value interface{})
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, opts ...oteltrace.EventOption)
	SetStatus(code codes.Code, description string)
	End(opts ...oteltrace.SpanEndOption)
	RecordError(err error, opts ...oteltrace.EventOption)
	SpanContext() oteltrace.SpanContext
}

// Attribute keys set on check spans.
const (
	AttrCheckName   = attribute.Key("check.name")
	AttrCheckKind   = attribute.Key("check.kind")
	AttrCheckStatus = attribute.Key("check.status")
)

// SpanOption configures span creation.
type SpanOption func(*spanConfig)

type spanConfig struct {
	spanKind   oteltrace.SpanKind
	attributes []attribute.KeyValue
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind oteltrace.SpanKind) SpanOption {
	return func(c *spanConfig) {
		c.spanKind = kind
	}
}

// WithAttributes adds attributes at span start.
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) {
		c.attributes = append(c.attributes, attrs...)
	}
}

type tracingManager struct {
	provider   *trace.TracerProvider
	tracer     oteltrace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingManager creates a manager that produces no-op spans until
// Initialize is called.
func NewTracingManager() TracingManager {
	return &tracingManager{}
}

// NewTracingManagerWithProvider wraps an existing provider, e.g. one backed
// by an in-memory exporter in tests.
func NewTracingManagerWithProvider(tp *trace.TracerProvider, serviceName string) TracingManager {
	return &tracingManager{
		provider:   tp,
		tracer:     tp.Tracer(serviceName),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
}

func (tm *tracingManager) Initialize(ctx context.Context, config *TracingConfig) error {
	if config == nil {
		return fmt.Errorf("tracing config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid tracing config: %w", err)
	}

	if !config.Enabled {
		tm.tracer = otel.Tracer(config.ServiceName)
		tm.propagator = propagation.NewCompositeTextMapPropagator()
		return nil
	}

	res, err := newResource(config)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := NewSpanExporter(ctx, config.Exporter)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	var processor trace.SpanProcessor
	if config.Exporter.Type == "console" {
		processor = trace.NewSimpleSpanProcessor(exporter)
	} else {
		processor = trace.NewBatchSpanProcessor(exporter)
	}

	tm.provider = trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSpanProcessor(processor),
		trace.WithSampler(newSampler(config.Sampling)),
	)
	otel.SetTracerProvider(tm.provider)
	tm.tracer = tm.provider.Tracer(config.ServiceName)

	tm.propagator = newPropagator(config.Propagators)
	otel.SetTextMapPropagator(tm.propagator)
	return nil
}

func newResource(config *TracingConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(config.ServiceName)}
	for key, value := range config.ResourceAttributes {
		attrs = append(attrs, attribute.String(key, value))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func newSampler(config SamplingConfig) trace.Sampler {
	switch config.Type {
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(config.Rate))
	default:
		return trace.AlwaysSample()
	}
}

func newPropagator(types []string) propagation.TextMapPropagator {
	var propagators []propagation.TextMapPropagator
	for _, t := range types {
		switch t {
		case "tracecontext":
			propagators = append(propagators, propagation.TraceContext{})
		case "baggage":
			propagators = append(propagators, propagation.Baggage{})
		}
	}
	if len(propagators) == 0 {
		propagators = append(propagators, propagation.TraceContext{})
	}
	return propagation.NewCompositeTextMapPropagator(propagators...)
}

func (tm *tracingManager) StartSpan(ctx context.Context, operationName string, opts ...SpanOption) (context.Context, Span) {
	if tm.tracer == nil {
		return ctx, &noOpSpan{}
	}

	config := &spanConfig{}
	for _, opt := range opts {
		opt(config)
	}
	spanOpts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(config.spanKind)}
	if len(config.attributes) > 0 {
		spanOpts = append(spanOpts, oteltrace.WithAttributes(config.attributes...))
	}

	ctx, otelSpan := tm.tracer.Start(ctx, operationName, spanOpts...)
	return ctx, &spanWrapper{span: otelSpan}
}

func (tm *tracingManager) SpanFromContext(ctx context.Context) Span {
	otelSpan := oteltrace.SpanFromContext(ctx)
	if !otelSpan.SpanContext().IsValid() {
		return &noOpSpan{}
	}
	return &spanWrapper{span: otelSpan}
}

func (tm *tracingManager) InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	if tm.propagator != nil {
		tm.propagator.Inject(ctx, propagation.HeaderCarrier(headers))
	}
}

func (tm *tracingManager) ExtractHTTPHeaders(headers http.Header) context.Context {
	if tm.propagator != nil {
		return tm.propagator.Extract(context.Background(), propagation.HeaderCarrier(headers))
	}
	return context.Background()
}

func (tm *tracingManager) InjectMap(ctx context.Context, carrier map[string]string) {
	if tm.propagator != nil && carrier != nil {
		tm.propagator.Inject(ctx, propagation.MapCarrier(carrier))
	}
}

func (tm *tracingManager) ExtractMap(ctx context.Context, carrier map[string]string) context.Context {
	if tm.propagator != nil && carrier != nil {
		return tm.propagator.Extract(ctx, propagation.MapCarrier(carrier))
	}
	return ctx
}

func (tm *tracingManager) Shutdown(ctx context.Context) error {
	if tm.provider != nil {
		return tm.provider.Shutdown(ctx)
	}
	return nil
}

type spanWrapper struct {
	span oteltrace.Span
}

func (s *spanWrapper) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *spanWrapper) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }

func (s *spanWrapper) AddEvent(name string, opts ...oteltrace.EventOption) {
	s.span.AddEvent(name, opts...)
}

func (s *spanWrapper) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *spanWrapper) End(opts ...oteltrace.SpanEndOption) { s.span.End(opts...) }

func (s *spanWrapper) RecordError(err error, opts ...oteltrace.EventOption) {
	s.span.RecordError(err, opts...)
}

func (s *spanWrapper) SpanContext() oteltrace.SpanContext { return s.span.SpanContext() }

type noOpSpan struct{}

func (s *noOpSpan) SetAttribute(key string, value interface{})           {}
func (s *noOpSpan) SetAttributes(attrs ...attribute.KeyValue)            {}
func (s *noOpSpan) AddEvent(name string, opts ...oteltrace.EventOption)  {}
func (s *noOpSpan) SetStatus(code codes.Code, description string)        {}
func (s *noOpSpan) End(opts ...oteltrace.SpanEndOption)                  {}
func (s *noOpSpan) RecordError(err error, opts ...oteltrace.EventOption) {}
func (s *noOpSpan) SpanContext() oteltrace.SpanContext {
	return oteltrace.SpanContext{}
}
