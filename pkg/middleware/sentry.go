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
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/innovationmech/switstatus/pkg/monitoring"
)

// SentryMiddleware reports panics and server errors to Sentry. With repanic
// set the panic is passed on to the next recovery handler, otherwise the
// request ends with a 500. It is a no-op when m is not initialized.
func SentryMiddleware(m *monitoring.SentryManager, repanic bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := m.Hub()
		if hub == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("component", "http")
			scope.SetTag("http.method", c.Request.Method)
			scope.SetTag("http.route", route)
			scope.SetRequest(c.Request)
		})
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer func() {
			rval := recover()
			if rval == nil {
				return
			}
			if m.CapturesPanics() {
				monitoring.CaptureOn(hub, monitoring.Report{
					Err:    panicError(rval),
					Level:  sentry.LevelFatal,
					Tags:   map[string]string{"panic": "true"},
					Extras: map[string]any{"stack_trace": string(debug.Stack())},
				})
				hub.Flush(2 * time.Second)
			}
			if repanic {
				panic(rval)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()

		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		if !m.ShouldCaptureHTTPError(code, c.Request.URL.Path) {
			return
		}
		report := monitoring.Report{
			Level:  sentry.LevelError,
			Tags:   map[string]string{"http.status_code": strconv.Itoa(code)},
			Extras: map[string]any{"response_time_ms": time.Since(start).Milliseconds()},
		}
		if len(c.Errors) == 0 {
			report.Err = fmt.Errorf("HTTP %d: %s", code, http.StatusText(code))
			monitoring.CaptureOn(hub, report)
			return
		}
		for _, ginErr := range c.Errors {
			report.Err = ginErr.Err
			monitoring.CaptureOn(hub, report)
		}
	}
}

func panicError(rval any) error {
	switch x := rval.(type) {
	case error:
		return fmt.Errorf("panic: %w", x)
	default:
		return fmt.Errorf("panic: %v", x)
	}
}
