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

// Package timing measures how long a named piece of work takes.
package timing

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stopwatch records the wall-clock time of one measured region.
// Elapsed is expressed in seconds once Stop has been called.
type Stopwatch struct {
	Name    string
	Started time.Time
	Elapsed float64

	mu      sync.Mutex
	stopped bool
	took    time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Stopwatch.
type Option func(*Stopwatch)

// WithLogger logs the measurement at debug level when the stopwatch stops.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stopwatch) {
		s.log = l
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Stopwatch) {
		if now != nil {
			s.now = now
		}
	}
}

// Start begins a measurement called name.
func Start(name string, opts ...Option) *Stopwatch {
	s := &Stopwatch{Name: name, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Started = s.now()
	return s
}

// Stop ends the measurement and returns the elapsed seconds.
// Only the first call records a value; later calls return it unchanged.
func (s *Stopwatch) Stop() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return s.Elapsed
	}
	s.took = s.now().Sub(s.Started)
	if s.took < 0 {
		s.took = 0
	}
	s.Elapsed = s.took.Seconds()
	s.stopped = true

	if s.log != nil {
		s.log.Debug(s.Name+": "+formatSeconds(s.Elapsed),
			zap.String("timer", s.Name),
			zap.Float64("elapsed", s.Elapsed))
	}
	return s.Elapsed
}

// Stopped reports whether Stop has been called.
func (s *Stopwatch) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Duration returns the measured duration, or the running time so far.
func (s *Stopwatch) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.took
	}
	return s.now().Sub(s.Started)
}

// Measure runs fn inside a stopwatch. The stopwatch is stopped however fn
// exits, including by panic, which is re-raised afterwards.
func Measure(name string, fn func() error, opts ...Option) (sw *Stopwatch, err error) {
	sw = Start(name, opts...)
	defer sw.Stop()
	err = fn()
	return sw, err
}
