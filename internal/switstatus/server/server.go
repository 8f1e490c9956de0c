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

// Package server exposes the status orchestrators over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/internal/switstatus/config"
	"github.com/innovationmech/switstatus/internal/switstatus/handler/http/health"
	statushandler "github.com/innovationmech/switstatus/internal/switstatus/handler/http/status"
	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/middleware"
	"github.com/innovationmech/switstatus/pkg/monitoring"
	"github.com/innovationmech/switstatus/pkg/tracing"
)

// Options are the collaborators the router needs.
type Options struct {
	Runner     statushandler.Runner
	Dispatcher statushandler.Dispatcher
	Tracing    tracing.TracingManager
	// Metrics is served on the metrics path when set.
	Metrics *prometheus.Registry
	// Sentry receives panics and server errors when initialized.
	Sentry *monitoring.SentryManager
}

// Server is the HTTP server of swit-status.
type Server struct {
	cfg     config.ServerConfig
	metrics config.MetricsConfig
	engine  *gin.Engine
	srv     *http.Server
}

// New builds the router for cfg.
func New(cfg *config.Config, opts Options) *Server {
	s := &Server{cfg: cfg.Server, metrics: cfg.Metrics}
	s.engine = s.newRouter(opts)
	return s
}

func (s *Server) newRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Sentry.IsInitialized() {
		router.Use(middleware.SentryMiddleware(opts.Sentry, true))
	}
	router.Use(middleware.RequestLogger())
	if opts.Tracing != nil {
		router.Use(middleware.TracingMiddleware(opts.Tracing))
	}
	if s.cfg.CORS.Enabled {
		router.Use(newCORS(s.cfg.CORS))
	}

	v1 := router.Group("/api/v1")
	health.RegisterRoutes(v1)
	statushandler.NewHandler(opts.Runner, opts.Dispatcher).RegisterRoutes(v1)

	if s.metrics.Enabled && opts.Metrics != nil {
		path := s.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{})))
	}
	return router
}

func newCORS(cfg config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	corsConfig.MaxAge = time.Duration(cfg.MaxAge) * time.Second

	logger.GetLogger().Info("CORS middleware configured",
		zap.Strings("allow_origins", cfg.AllowOrigins),
		zap.Strings("allow_methods", corsConfig.AllowMethods),
		zap.Int("max_age_seconds", cfg.MaxAge))
	return cors.New(corsConfig)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.GetLogger().Info("HTTP server listening", zap.String("address", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.GetLogger().Info("HTTP server stopped")
	return nil
}
