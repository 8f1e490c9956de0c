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

// Package monitoring reports server errors and failed check tasks to Sentry.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrAlreadyInitialized is returned by a second Initialize.
var ErrAlreadyInitialized = errors.New("sentry manager already initialized")

// SentryConfig holds the Sentry options. Reporting is off unless Enabled.
type SentryConfig struct {
	Enabled     bool              `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	DSN         string            `mapstructure:"dsn" json:"dsn" yaml:"dsn"`
	Environment string            `mapstructure:"environment" json:"environment" yaml:"environment"`
	Release     string            `mapstructure:"release" json:"release" yaml:"release"`
	ServerName  string            `mapstructure:"server_name" json:"server_name" yaml:"server_name"`
	SampleRate  float64           `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
	Debug       bool              `mapstructure:"debug" json:"debug" yaml:"debug"`
	Tags        map[string]string `mapstructure:"tags" json:"tags" yaml:"tags"`
	// CapturePanics reports recovered panics of HTTP handlers and tasks.
	CapturePanics bool `mapstructure:"capture_panics" json:"capture_panics" yaml:"capture_panics"`
	// IgnoreErrors drops errors whose message contains one of the entries.
	IgnoreErrors []string `mapstructure:"ignore_errors" json:"ignore_errors" yaml:"ignore_errors"`
	// HTTPIgnoreStatusCodes are 5xx responses that are not reported. The
	// status view answers 503 for a failing check, which is a result, not
	// a server error.
	HTTPIgnoreStatusCodes []int    `mapstructure:"http_ignore_status_codes" json:"http_ignore_status_codes" yaml:"http_ignore_status_codes"`
	HTTPIgnorePaths       []string `mapstructure:"http_ignore_paths" json:"http_ignore_paths" yaml:"http_ignore_paths"`
}

// Option configures a SentryManager.
type Option func(*SentryManager)

// WithBeforeSend runs fn on every event that passes the ignore filters.
// Returning nil drops the event.
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) Option {
	return func(sm *SentryManager) { sm.beforeSend = fn }
}

// SentryManager owns a Sentry hub for the process. Every method is safe on
// a disabled or uninitialized manager, including a nil one.
type SentryManager struct {
	config     SentryConfig
	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event

	mu          sync.RWMutex
	hub         *sentry.Hub
	initialized bool
}

// NewSentryManager creates a manager. A nil config disables reporting.
func NewSentryManager(config *SentryConfig, opts ...Option) *SentryManager {
	sm := &SentryManager{}
	if config != nil {
		sm.config = *config
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Initialize creates the Sentry client. It does nothing when disabled.
func (sm *SentryManager) Initialize(_ context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.config.Enabled {
		return nil
	}
	if sm.initialized {
		return ErrAlreadyInitialized
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              sm.config.DSN,
		Environment:      sm.config.Environment,
		Release:          sm.config.Release,
		ServerName:       sm.config.ServerName,
		SampleRate:       sm.config.SampleRate,
		Debug:            sm.config.Debug,
		AttachStacktrace: true,
		Tags:             sm.config.Tags,
		BeforeSend:       sm.filterEvent,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	sm.hub = sentry.NewHub(client, sentry.NewScope())
	sm.initialized = true
	return nil
}

// Close flushes pending events.
func (sm *SentryManager) Close() error {
	if sm == nil {
		return nil
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return nil
	}
	sm.hub.Flush(5 * time.Second)
	sm.initialized = false
	return nil
}

// IsEnabled reports whether the configuration enables Sentry.
func (sm *SentryManager) IsEnabled() bool {
	return sm != nil && sm.config.Enabled
}

// IsInitialized reports whether events are being sent.
func (sm *SentryManager) IsInitialized() bool {
	if sm == nil {
		return false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.initialized
}

// CapturesPanics reports whether recovered panics should be reported.
func (sm *SentryManager) CapturesPanics() bool {
	return sm.IsEnabled() && sm.config.CapturePanics
}

// Hub returns a clone of the manager's hub for one request or task, or nil
// when reporting is off.
func (sm *SentryManager) Hub() *sentry.Hub {
	if sm == nil {
		return nil
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if !sm.initialized {
		return nil
	}
	return sm.hub.Clone()
}

// Report describes one error to capture.
type Report struct {
	Err    error
	Level  sentry.Level
	Tags   map[string]string
	Extras map[string]any
}

// Capture sends r on a fresh scope. It returns nil when nothing was sent.
func (sm *SentryManager) Capture(r Report) *sentry.EventID {
	hub := sm.Hub()
	if hub == nil || !sm.ShouldCaptureError(r.Err) {
		return nil
	}
	return CaptureOn(hub, r)
}

// CaptureOn sends r through hub on a fresh scope.
func CaptureOn(hub *sentry.Hub, r Report) *sentry.EventID {
	var id *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		if r.Level != "" {
			scope.SetLevel(r.Level)
		}
		scope.SetTags(r.Tags)
		for k, v := range r.Extras {
			scope.SetExtra(k, v)
		}
		id = hub.CaptureException(r.Err)
	})
	return id
}

// ShouldCaptureError reports whether err is not covered by IgnoreErrors.
func (sm *SentryManager) ShouldCaptureError(err error) bool {
	if !sm.IsEnabled() || err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range sm.config.IgnoreErrors {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	return true
}

// ShouldCaptureHTTPError reports whether a response with statusCode on
// path is a server error worth reporting.
func (sm *SentryManager) ShouldCaptureHTTPError(statusCode int, path string) bool {
	if !sm.IsEnabled() || statusCode < 500 {
		return false
	}
	if slices.Contains(sm.config.HTTPIgnoreStatusCodes, statusCode) {
		return false
	}
	for _, p := range sm.config.HTTPIgnorePaths {
		if strings.Contains(path, p) {
			return false
		}
	}
	return true
}

// Flush waits up to timeout for pending events.
func (sm *SentryManager) Flush(timeout time.Duration) bool {
	hub := sm.Hub()
	if hub == nil {
		return true
	}
	return hub.Flush(timeout)
}

func (sm *SentryManager) filterEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for _, ex := range event.Exception {
		if ex.Value != "" && !sm.ShouldCaptureError(errors.New(ex.Value)) {
			return nil
		}
	}
	if sm.beforeSend != nil {
		return sm.beforeSend(event, hint)
	}
	return event
}
