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

package timing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStopRecordsElapsedSeconds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	sw := Start("db", WithClock(clock.now))

	clock.advance(1500 * time.Millisecond)
	got := sw.Stop()

	assert.InDelta(t, 1.5, got, 1e-9)
	assert.InDelta(t, 1.5, sw.Elapsed, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, sw.Duration())
	assert.True(t, sw.Stopped())
}

func TestStopIsIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	sw := Start("swap", WithClock(clock.now))

	clock.advance(time.Second)
	first := sw.Stop()
	clock.advance(time.Hour)
	second := sw.Stop()

	assert.Equal(t, first, second)
}

func TestClockGoingBackwardsClampsToZero(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	sw := Start("skew", WithClock(clock.now))

	clock.advance(-time.Second)

	assert.Zero(t, sw.Stop())
}

func TestMeasureStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	sw, err := Measure("failing", func() error { return boom })

	require.ErrorIs(t, err, boom)
	assert.True(t, sw.Stopped())
	assert.GreaterOrEqual(t, sw.Elapsed, 0.0)
}

func TestDeferredStopSurvivesPanic(t *testing.T) {
	var captured *Stopwatch
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	assert.PanicsWithValue(t, "kaput", func() {
		captured = Start("panicking", WithClock(clock.now))
		defer captured.Stop()
		clock.advance(250 * time.Millisecond)
		panic("kaput")
	})

	require.NotNil(t, captured)
	assert.True(t, captured.Stopped())
	assert.InDelta(t, 0.25, captured.Elapsed, 1e-9)
}

func TestWithLoggerEmitsDebugLine(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	sw := Start("workers", WithLogger(zap.New(core)), WithClock(clock.now))
	clock.advance(125 * time.Millisecond)
	sw.Stop()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "workers: 0.125", entries[0].Message)
}
