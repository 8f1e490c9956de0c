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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/switstatus/pkg/monitoring"
)

func newSentryRouter(t *testing.T, cfg monitoring.SentryConfig) (*gin.Engine, func() []*sentry.Event) {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	cfg.Enabled = true
	m := monitoring.NewSentryManager(&cfg, monitoring.WithBeforeSend(func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	}))
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	router := gin.New()
	router.Use(SentryMiddleware(m, false))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/down", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	router.GET("/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("result backend unreachable"))
		c.Status(http.StatusInternalServerError)
	})
	router.GET("/panic", func(*gin.Context) { panic("handler exploded") })

	return router, func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]*sentry.Event(nil), events...)
	}
}

func TestSentryMiddleware(t *testing.T) {
	router, events := newSentryRouter(t, monitoring.SentryConfig{
		CapturePanics:         true,
		HTTPIgnoreStatusCodes: []int{http.StatusServiceUnavailable},
	})

	for _, path := range []string{"/ok", "/down"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, events())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, resp.Body.String())

	got := events()
	require.Len(t, got, 2)

	assert.Equal(t, sentry.LevelError, got[0].Level)
	assert.Equal(t, "500", got[0].Tags["http.status_code"])
	assert.Equal(t, "/broken", got[0].Tags["http.route"])
	require.NotEmpty(t, got[0].Exception)
	assert.Equal(t, "result backend unreachable", got[0].Exception[len(got[0].Exception)-1].Value)

	assert.Equal(t, sentry.LevelFatal, got[1].Level)
	assert.Equal(t, "true", got[1].Tags["panic"])
	assert.Contains(t, got[1].Extra["stack_trace"], "goroutine")
	require.NotEmpty(t, got[1].Exception)
	assert.Equal(t, "panic: handler exploded", got[1].Exception[len(got[1].Exception)-1].Value)
}

func TestSentryMiddlewareRepanics(t *testing.T) {
	m := monitoring.NewSentryManager(&monitoring.SentryConfig{Enabled: true},
		monitoring.WithBeforeSend(func(*sentry.Event, *sentry.EventHint) *sentry.Event { return nil }))
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusTeapot)
	}))
	router.Use(SentryMiddleware(m, true))
	router.GET("/panic", func(*gin.Context) { panic("handler exploded") })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusTeapot, resp.Code)
}

func TestSentryMiddlewareDisabled(t *testing.T) {
	router := gin.New()
	router.Use(SentryMiddleware(monitoring.NewSentryManager(nil), false))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}
