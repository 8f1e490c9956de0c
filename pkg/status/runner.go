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
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/timing"
	"github.com/innovationmech/switstatus/pkg/tracing"
)

// Report is the result of one synchronous orchestration. Every slice follows
// configuration order.
type Report struct {
	Checks    []*Check
	Errors    []*CheckError
	Warnings  []*CheckWarning
	StartedAt time.Time
	Elapsed   time.Duration
}

// Status is the worst status among the checks.
func (r *Report) Status() Status {
	switch {
	case len(r.Errors) > 0:
		return StatusError
	case len(r.Warnings) > 0:
		return StatusWarning
	}
	s := StatusNormal
	for _, c := range r.Checks {
		s = Worst(s, c.Status())
	}
	return s
}

// runOptions are shared by Runner and Dispatcher.
type runOptions struct {
	timeout func() time.Duration
	metrics MetricsCollector
	tracing tracing.TracingManager
	log     *zap.Logger
}

// Option configures a Runner or a Dispatcher.
type Option func(*runOptions)

// WithCheckTimeout bounds each check run with a context deadline.
func WithCheckTimeout(d time.Duration) Option {
	return func(o *runOptions) { o.timeout = func() time.Duration { return d } }
}

// WithCheckTimeoutFunc reads the per-check timeout before every run, so a
// reloaded value applies to the next check.
func WithCheckTimeoutFunc(f func() time.Duration) Option {
	return func(o *runOptions) { o.timeout = f }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *runOptions) { o.metrics = m }
}

// WithTracing opens a span per check run.
func WithTracing(tm tracing.TracingManager) Option {
	return func(o *runOptions) { o.tracing = tm }
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) { o.log = l }
}

func newRunOptions(opts []Option) runOptions {
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NoOpMetricsCollector{}
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}
	return o
}

// runCheck runs c once under the configured timeout, span, metrics and logs.
func (o runOptions) runCheck(ctx context.Context, c *Check) error {
	if o.timeout != nil {
		if d := o.timeout(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	var span tracing.Span
	if o.tracing != nil {
		ctx, span = o.tracing.StartSpan(ctx, "status.check",
			tracing.WithSpanKind(oteltrace.SpanKindInternal),
			tracing.WithAttributes(
				tracing.AttrCheckName.String(c.Name()),
				tracing.AttrCheckKind.String(c.Kind()),
			))
		defer span.End()
	}

	err := c.Run(ctx)

	st := c.Status()
	o.metrics.RecordCheck(c.Name(), c.Kind(), st, c.Timing.Duration())
	if span != nil {
		span.SetAttributes(tracing.AttrCheckStatus.String(st.String()))
		if st == StatusError {
			span.SetStatus(codes.Error, c.Output)
		}
	}

	fields := []zap.Field{
		zap.String("check", c.Name()),
		zap.String("kind", c.Kind()),
		zap.String("elapsed", timing.Format(c.Elapsed())),
	}
	switch {
	case c.Error != nil:
		o.log.Error(c.Error.LogMessage, fields...)
	case c.Warning != nil:
		o.log.Warn(c.Warning.LogMessage, fields...)
	default:
		o.log.Debug(c.Output, fields...)
	}
	return err
}

// Runner runs every configured check in the calling goroutine.
type Runner struct {
	loader  *Loader
	sources SourceProvider
	opts    runOptions
}

// NewRunner creates a runner. sources is read on every Run, so a reloadable
// configuration takes effect on the next run.
func NewRunner(loader *Loader, sources SourceProvider, opts ...Option) *Runner {
	return &Runner{loader: loader, sources: sources, opts: newRunOptions(opts)}
}

// Run executes each check in configuration order and collects the outcome.
// Check failures never stop the batch.
func (r *Runner) Run(ctx context.Context) *Report {
	rep := &Report{StartedAt: time.Now()}
	sw := timing.Start("status report", timing.WithLogger(r.opts.log))

	for c, err := range r.loader.LoadAll(ctx, r.sources.Sources()) {
		if err != nil {
			c = r.misconfigured(err)
			err = c.Error
		} else {
			err = r.opts.runCheck(ctx, c)
		}
		rep.Checks = append(rep.Checks, c)

		if w, ok := AsCheckWarning(err); ok {
			rep.Warnings = append(rep.Warnings, w)
		} else if e, ok := AsCheckError(err); ok {
			rep.Errors = append(rep.Errors, e)
		}
	}

	sw.Stop()
	rep.Elapsed = sw.Duration()
	r.opts.metrics.RecordReport(rep.Status(), len(rep.Checks), rep.Elapsed)
	return rep
}

// misconfigured turns a loader error into a check in the error state so the
// entry stays visible in the report.
func (r *Runner) misconfigured(err error) *Check {
	spec := CheckSpec{}
	var se *SpecError
	if errors.As(err, &se) {
		spec.Name, spec.Kind = se.Name, se.Kind
	}
	r.opts.metrics.RecordSpecError(spec.Name)

	c := NewCheck(spec, nil)
	c.Timing = timing.Start(spec.Name)
	c.Timing.Stop()
	c.Error = NewCheckError(err.Error())
	c.Output = c.Error.Message
	return c
}
