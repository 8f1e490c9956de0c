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

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/internal/switstatus/config"
	"github.com/innovationmech/switstatus/pkg/monitoring"
	"github.com/innovationmech/switstatus/pkg/status"
	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	return newTestServerWith(t, mutate, Options{})
}

// newTestServerWith fills the runner, dispatcher and metrics of extra.
func newTestServerWith(t *testing.T, mutate func(*config.Config), extra Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:  config.ServerConfig{Address: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	reg := status.NewRegistry()
	reg.MustRegister("ok", func(string, map[string]any) (status.Probe, error) {
		return status.ProbeFunc(func(context.Context) (string, error) { return "fine", nil }), nil
	})
	loader := status.NewLoader(reg)
	sources := status.StaticSources{status.Inline(status.CheckSpec{Name: "a", Kind: "ok"})}

	metrics, err := status.NewPrometheusMetricsCollector(nil)
	require.NoError(t, err)
	q := taskqueue.NewQueue(taskqueue.NewMemoryBroker(4), taskqueue.NewMemoryBackend(), taskqueue.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = q.Close() })

	extra.Runner = status.NewRunner(loader, sources, status.WithMetrics(metrics), status.WithLogger(zap.NewNop()))
	extra.Dispatcher = status.NewDispatcher(loader, sources, q, status.WithLogger(zap.NewNop()))
	extra.Metrics = metrics.GetRegistry()
	return New(cfg, extra)
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	resp := get(s.Handler(), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"alive"}`, resp.Body.String())

	resp = get(s.Handler(), "/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = get(s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "swit_status_checks_total")
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Metrics.Enabled = false })

	assert.Equal(t, http.StatusNotFound, get(s.Handler(), "/metrics").Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.CORS = config.CORSConfig{Enabled: true, AllowOrigins: []string{"https://ops.example.com"}}
	})

	resp := get(s.Handler(), "/api/v1/health/live", "Origin", "https://ops.example.com")
	assert.Equal(t, "https://ops.example.com", resp.Header().Get("Access-Control-Allow-Origin"))

	resp = get(s.Handler(), "/api/v1/health/live", "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestSentryReportsPanics(t *testing.T) {
	var events []*sentry.Event
	m := monitoring.NewSentryManager(&monitoring.SentryConfig{Enabled: true, CapturePanics: true},
		monitoring.WithBeforeSend(func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events = append(events, e)
			return nil
		}))
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	s := newTestServerWith(t, nil, Options{Sentry: m})
	s.engine.GET("/boom", func(*gin.Context) { panic("handler exploded") })

	assert.Equal(t, http.StatusOK, get(s.Handler(), "/api/v1/status").Code)
	assert.Equal(t, http.StatusInternalServerError, get(s.Handler(), "/boom").Code)

	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelFatal, events[0].Level)
	assert.Equal(t, "/boom", events[0].Tags["http.route"])
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/v1/health/live"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunRejectsBadAddress(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.Address = "not-an-address" })
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not-an-address"))
}
