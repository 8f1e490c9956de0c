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

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/innovationmech/switstatus/pkg/tracing"
)

// HTTPTracingConfig holds configuration for HTTP tracing middleware
type HTTPTracingConfig struct {
	SkipPaths []string // Paths to skip tracing
}

// DefaultHTTPTracingConfig returns default HTTP tracing configuration
func DefaultHTTPTracingConfig() *HTTPTracingConfig {
	return &HTTPTracingConfig{
		SkipPaths: []string{"/api/v1/health/live", "/metrics"},
	}
}

// TracingMiddleware creates a Gin middleware that adds OpenTelemetry tracing
func TracingMiddleware(tm tracing.TracingManager) gin.HandlerFunc {
	return TracingMiddlewareWithConfig(tm, DefaultHTTPTracingConfig())
}

// TracingMiddlewareWithConfig creates a Gin middleware with custom configuration.
// The request span becomes the parent of every check span started while
// handling the request.
func TracingMiddlewareWithConfig(tm tracing.TracingManager, config *HTTPTracingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultHTTPTracingConfig()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		if remote := trace.SpanContextFromContext(tm.ExtractHTTPHeaders(c.Request.Header)); remote.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
		}

		route := c.FullPath()
		operationName := c.Request.Method + " " + route
		if route == "" {
			operationName = c.Request.Method + " " + c.Request.URL.Path
		}

		ctx, span := tm.StartSpan(
			ctx,
			operationName,
			tracing.WithSpanKind(trace.SpanKindServer),
			tracing.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.URLPath(c.Request.URL.Path),
				semconv.ServerAddress(c.Request.Host),
				semconv.UserAgentOriginal(c.Request.UserAgent()),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		if id, ok := c.Get(RequestIDKey); ok {
			span.SetAttribute("http.request_id", id)
		}

		c.Next()

		statusCode := c.Writer.Status()
		span.SetAttribute(string(semconv.HTTPResponseStatusCodeKey), statusCode)
		if statusCode >= 400 {
			span.SetStatus(codes.Error, http.StatusText(statusCode))
			if len(c.Errors) > 0 {
				span.RecordError(c.Errors.Last())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
