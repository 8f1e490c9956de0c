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

// Package status runs named health checks, classifies each outcome as
// normal, warning or error, and aggregates the results either in-process or
// through a background task queue.
package status

import (
	"context"
	"fmt"

	"github.com/innovationmech/switstatus/pkg/timing"
)

// DefaultOutput is the output of a check whose probe returned no message.
const DefaultOutput = "OK"

// State is the lifecycle position of a check.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateNormal  State = "normal"
	StateWarning State = "warning"
	StateError   State = "error"
)

// Probe is the single operation a concrete check implements. It returns a
// success message, a *CheckWarning, a *CheckError, or any other error, which
// is treated as an unexpected failure.
type Probe interface {
	Probe(ctx context.Context) (string, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (string, error)

func (f ProbeFunc) Probe(ctx context.Context) (string, error) { return f(ctx) }

// Check is one named, runnable health check and the result of its last run.
type Check struct {
	Output  string
	Error   *CheckError
	Warning *CheckWarning
	Timing  *timing.Stopwatch

	spec    CheckSpec
	probe   Probe
	running bool
}

// NewCheck wraps probe as a check built from spec.
func NewCheck(spec CheckSpec, probe Probe) *Check {
	return &Check{spec: spec, probe: probe}
}

// Name is the configured name, unique within one orchestration run.
func (c *Check) Name() string { return c.spec.Name }

// Kind is the registry key the check was built from.
func (c *Check) Kind() string { return c.spec.Kind }

// Spec returns a copy of the spec the check was built from.
func (c *Check) Spec() CheckSpec { return c.spec.clone() }

// Probe exposes the underlying probe, mainly for inspection in tests.
func (c *Check) Probe() Probe { return c.probe }

// Run executes the probe once and records the outcome. Timing is recorded on
// every exit path. The returned error is nil, a *CheckWarning or a
// *CheckError; unexpected failures are normalized to *CheckError.
func (c *Check) Run(ctx context.Context) (err error) {
	c.Output, c.Error, c.Warning = "", nil, nil
	c.running = true
	c.Timing = timing.Start(c.spec.Name)
	defer func() {
		if r := recover(); r != nil {
			err = c.fail(&PanicError{Value: r})
		}
		c.Timing.Stop()
		c.running = false
	}()

	if c.probe == nil {
		return c.fail(fmt.Errorf("check %q has no probe", c.spec.Name))
	}

	out, perr := c.probe.Probe(ctx)
	if perr != nil {
		return c.fail(perr)
	}
	if out == "" {
		out = DefaultOutput
	}
	c.Output = out
	return nil
}

func (c *Check) fail(err error) error {
	if w, ok := AsCheckWarning(err); ok {
		c.Warning = w
		c.Output = w.Message
		return w
	}
	if e, ok := AsCheckError(err); ok {
		c.Error = e
		c.Output = e.Message
		return e
	}
	c.Error = NewCheckError(describe(err))
	c.Output = err.Error()
	return c.Error
}

// State reports the lifecycle state derived from the last run.
func (c *Check) State() State {
	switch {
	case c.running:
		return StateRunning
	case c.Error != nil:
		return StateError
	case c.Warning != nil:
		return StateWarning
	case c.Timing == nil:
		return StatePending
	default:
		return StateNormal
	}
}

// Status is the outcome of the last run: error, warning or normal.
// A check that never ran reports normal.
func (c *Check) Status() Status {
	switch {
	case c.Error != nil:
		return StatusError
	case c.Warning != nil:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Elapsed returns the seconds spent in the last run, or -1 if it never ran.
func (c *Check) Elapsed() float64 {
	if c.Timing == nil {
		return -1
	}
	return c.Timing.Elapsed
}

func (c *Check) String() string {
	return fmt.Sprintf("%s %s: %s (%ss)", c.spec.Kind, c.spec.Name, c.Output, timing.Format(c.Elapsed()))
}

// PanicError is the failure recorded when a probe panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
