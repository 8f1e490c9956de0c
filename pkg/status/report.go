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
	"time"
)

// CheckView is the JSON shape of one check.
type CheckView struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	Status  Status  `json:"status"`
	Output  string  `json:"output"`
	Elapsed float64 `json:"elapsed"`
}

// ReportView is the JSON shape of a Report.
type ReportView struct {
	Status    Status      `json:"status"`
	Checks    []CheckView `json:"checks"`
	Errors    []string    `json:"errors"`
	Warnings  []string    `json:"warnings"`
	StartedAt time.Time   `json:"started_at"`
	Elapsed   float64     `json:"elapsed"`
}

// NewCheckView renders c.
func NewCheckView(c *Check) CheckView {
	return CheckView{
		Name:    c.Name(),
		Kind:    c.Kind(),
		Status:  c.Status(),
		Output:  c.Output,
		Elapsed: c.Elapsed(),
	}
}

// View renders the report for JSON output.
func (r *Report) View() ReportView {
	v := ReportView{
		Status:    r.Status(),
		Checks:    make([]CheckView, 0, len(r.Checks)),
		Errors:    make([]string, 0, len(r.Errors)),
		Warnings:  make([]string, 0, len(r.Warnings)),
		StartedAt: r.StartedAt,
		Elapsed:   r.Elapsed.Seconds(),
	}
	for _, c := range r.Checks {
		v.Checks = append(v.Checks, NewCheckView(c))
	}
	for _, e := range r.Errors {
		v.Errors = append(v.Errors, e.Message)
	}
	for _, w := range r.Warnings {
		v.Warnings = append(v.Warnings, w.Message)
	}
	return v
}
