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

import "time"

// MetricsCollector receives check and orchestration measurements.
type MetricsCollector interface {
	// RecordCheck records one finished check run.
	RecordCheck(name, kind string, status Status, elapsed time.Duration)

	// RecordReport records one synchronous orchestration.
	RecordReport(status Status, checks int, elapsed time.Duration)

	// RecordDispatch records one check submitted to the queue.
	RecordDispatch(name, kind string, err error)

	// RecordSpecError records a configuration entry that was skipped.
	RecordSpecError(name string)
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordCheck(string, string, Status, time.Duration) {}
func (NoOpMetricsCollector) RecordReport(Status, int, time.Duration)           {}
func (NoOpMetricsCollector) RecordDispatch(string, string, error)              {}
func (NoOpMetricsCollector) RecordSpecError(string)                            {}
